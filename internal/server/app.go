// Package server wires configuration, storage, the credential vault and the
// payment services into one App used by the operator CLI.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/hotspotpay/internal/cryptox"
	"github.com/dmitrijs2005/hotspotpay/internal/logging"
	"github.com/dmitrijs2005/hotspotpay/internal/server/audit"
	"github.com/dmitrijs2005/hotspotpay/internal/server/config"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/dmitrijs2005/hotspotpay/internal/server/provider/intasend"
	"github.com/dmitrijs2005/hotspotpay/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/hotspotpay/internal/server/services"
)

var openDB = sql.Open

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	Credentials *services.CredentialService
	Routers     *services.RouterService
	Ledger      *services.PaymentLedger
	Checkout    *services.Checkout
	Reconciler  *services.Reconciler
}

// NewApp opens the database, applies migrations and builds the services.
// A missing vault key is not fatal: payments still work and every
// credential operation fails with common.ErrConfiguration.
func NewApp(ctx context.Context, c *config.Config, logOut io.Writer) (*App, error) {
	logger := logging.NewJSONLogger(logOut, c.LogLevel)

	vault, err := cryptox.NewVaultFromString(c.VaultKey)
	if err != nil {
		logger.Warn(ctx, "credential vault unavailable", "error", err)
		vault = &cryptox.Vault{}
	}

	db, err := openDB("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	app, err := newApp(ctx, c, logger, db, rm, vault)
	if err != nil {
		db.Close()
		return nil, err
	}
	return app, nil
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger, db *sql.DB,
	rm repomanager.RepositoryManager, vault *cryptox.Vault) (*App, error) {

	clock := services.SystemClock{}
	creds := services.NewCredentialService(db, rm, vault, clock)
	ledger := services.NewPaymentLedger(rm.Payments(db), services.NewRepositoryCatalog(db, rm), clock, NewLogGranter(logger))

	resolver := intasend.NewResolver(creds, intasend.Settings{
		SandboxURL:    c.IntaSendSandboxURL,
		LiveURL:       c.IntaSendLiveURL,
		CallbackURL:   c.CallbackURL,
		Timeout:       c.ProviderTimeout,
		RatePerSecond: c.ProviderRatePerSecond,
		Burst:         c.ProviderBurst,
	})

	var observer services.Observer
	if c.ArchiveEnabled() {
		archive, err := audit.NewArchive(ctx, audit.Settings{
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			Endpoint:  c.S3BaseEndpoint,
			AccessKey: c.S3RootUser,
			SecretKey: c.S3RootPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("audit archive init error: %w", err)
		}
		observer = archive
	}

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		Credentials: creds,
		Routers:     services.NewRouterService(db, rm, vault),
		Ledger:      ledger,
		Checkout:    services.NewCheckout(ledger, resolver, c.ProviderTimeout),
		Reconciler:  services.NewReconciler(ledger, resolver, c.ProviderTimeout, observer),
	}, nil
}

func (app *App) Logger() logging.Logger { return app.logger }

func (app *App) Close() error {
	if app.db == nil {
		return nil
	}
	return app.db.Close()
}

// InitSignalHandler cancels the context on SIGINT, SIGTERM or SIGQUIT.
func (app *App) InitSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// ReconcilePending checks every pending and processing payment of userID.
// One payment failing to reconcile does not stop the sweep.
func (app *App) ReconcilePending(ctx context.Context, userID string) ([]*services.CheckResult, error) {
	var (
		results []*services.CheckResult
		errs    []error
	)
	for _, status := range []models.Status{models.StatusPending, models.StatusProcessing} {
		ps, err := app.Ledger.ListByStatus(ctx, userID, status)
		if err != nil {
			return results, err
		}
		for _, p := range ps {
			if ctx.Err() != nil {
				return results, errors.Join(append(errs, ctx.Err())...)
			}
			res, err := app.Reconciler.Check(ctx, userID, p.ID)
			if res != nil {
				app.logResult(ctx, res)
				results = append(results, res)
			}
			if err != nil {
				app.logger.Warn(ctx, "reconciliation failed", "payment_id", p.ID, "error", err)
				errs = append(errs, fmt.Errorf("payment %s: %w", p.ID, err))
			}
		}
	}
	return results, errors.Join(errs...)
}

func (app *App) logResult(ctx context.Context, res *services.CheckResult) {
	args := []any{
		"payment_id", res.Payment.ID,
		"status", res.Payment.Status,
		"provider_state", res.ProviderState,
		"applied", res.Applied,
	}
	if res.Queried && !res.AmountMatches() {
		app.logger.Warn(ctx, "provider amount differs from payment amount",
			append(args, "provider_amount", res.ProviderAmount.Decimal.String(), "amount", res.Payment.Amount.String())...)
	}
	if res.ArchiveErr != nil {
		app.logger.Warn(ctx, "observation not archived", append(args, "error", res.ArchiveErr)...)
	}
	if res.GrantErr != nil {
		app.logger.Warn(ctx, "access not granted", append(args, "error", res.GrantErr)...)
	}
	app.logger.Info(ctx, "payment reconciled", args...)
}
