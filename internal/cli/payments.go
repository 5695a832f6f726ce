package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/dmitrijs2005/hotspotpay/internal/server/services"
	"github.com/shopspring/decimal"
)

func (a *App) Payments(ctx context.Context, sub string, args []string) error {
	switch sub {
	case "create":
		return a.paymentsCreate(ctx, args)
	case "check":
		return a.paymentsCheck(ctx, args)
	case "retry":
		return a.paymentsRetry(ctx, args)
	case "grant":
		return a.paymentsGrant(ctx, args)
	case "fail", "cancel":
		return a.paymentsStop(ctx, sub, args)
	case "list":
		return a.paymentsList(ctx, args)
	default:
		return fmt.Errorf("%w: unknown payments command %q", ErrUsage, sub)
	}
}

func (a *App) paymentsCreate(ctx context.Context, args []string) error {
	fs := newFlagSet("payments create", a.out)
	userID := fs.String("user", "", "owning user id")
	routerID := fs.String("router", "", "router id")
	packageID := fs.String("package", "", "package id")
	phone := fs.String("phone", "", "customer phone number")
	amount := fs.String("amount", "", "amount, must equal the package price")
	currency := fs.String("currency", "", "currency (default KES)")
	method := fs.String("method", "", "mpesa, card or bank (default mpesa)")
	mac := fs.String("mac", "", "client MAC address")
	ip := fs.String("ip", "", "client IP address")
	if err := parse(fs, args); err != nil {
		return err
	}
	for _, f := range [][2]string{{"user", *userID}, {"router", *routerID}, {"package", *packageID}, {"phone", *phone}, {"amount", *amount}} {
		if err := required(f[0], f[1]); err != nil {
			return err
		}
	}
	amt, err := decimal.NewFromString(*amount)
	if err != nil {
		return fmt.Errorf("%w: invalid amount %q", ErrUsage, *amount)
	}

	p, res, err := a.backend.Checkout.Start(ctx, *userID, services.NewPayment{
		RouterID:    *routerID,
		PackageID:   *packageID,
		PhoneNumber: *phone,
		Amount:      amt,
		Currency:    *currency,
		Method:      *method,
		MACAddress:  *mac,
		IPAddress:   *ip,
	})
	if p != nil {
		a.printPayment(p)
	}
	if err != nil {
		return err
	}
	if res != nil && res.PaymentURL != "" {
		fmt.Fprintf(a.out, "payment url: %s\n", res.PaymentURL)
	}
	return nil
}

func (a *App) paymentsCheck(ctx context.Context, args []string) error {
	fs := newFlagSet("payments check", a.out)
	userID := fs.String("user", "", "owning user id")
	id := fs.String("id", "", "payment id")
	all := fs.Bool("all", false, "check every pending and processing payment")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("user", *userID); err != nil {
		return err
	}

	if *all {
		results, err := a.backend.ReconcilePending(ctx, *userID)
		for _, res := range results {
			a.printCheck(res)
		}
		return err
	}

	if err := required("id", *id); err != nil {
		return err
	}
	res, err := a.backend.Reconciler.Check(ctx, *userID, *id)
	if res != nil {
		a.printCheck(res)
	}
	return err
}

func (a *App) paymentsGrant(ctx context.Context, args []string) error {
	fs := newFlagSet("payments grant", a.out)
	userID := fs.String("user", "", "owning user id")
	id := fs.String("id", "", "payment id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("user", *userID); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	p, err := a.backend.Ledger.Regrant(ctx, *userID, *id)
	if err != nil {
		return err
	}
	a.printPayment(p)
	fmt.Fprintln(a.out, "  access granted")
	return nil
}

func (a *App) paymentsRetry(ctx context.Context, args []string) error {
	fs := newFlagSet("payments retry", a.out)
	userID := fs.String("user", "", "owning user id")
	id := fs.String("id", "", "payment id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("user", *userID); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	p, res, err := a.backend.Checkout.Retry(ctx, *userID, *id)
	if p != nil {
		a.printPayment(p)
	}
	if err != nil {
		return err
	}
	if res != nil && res.PaymentURL != "" {
		fmt.Fprintf(a.out, "payment url: %s\n", res.PaymentURL)
	}
	return nil
}

func (a *App) paymentsStop(ctx context.Context, sub string, args []string) error {
	fs := newFlagSet("payments "+sub, a.out)
	userID := fs.String("user", "", "owning user id")
	id := fs.String("id", "", "payment id")
	reason := fs.String("reason", "marked failed by operator", "failure reason")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("user", *userID); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	var (
		p   *models.Payment
		err error
	)
	if sub == "cancel" {
		p, err = a.backend.Ledger.Cancel(ctx, *userID, *id)
	} else {
		p, err = a.backend.Ledger.Fail(ctx, *userID, *id, *reason)
	}
	if err != nil {
		return err
	}
	a.printPayment(p)
	return nil
}

func (a *App) paymentsList(ctx context.Context, args []string) error {
	fs := newFlagSet("payments list", a.out)
	userID := fs.String("user", "", "owning user id")
	status := fs.String("status", string(models.StatusPending), "payment status")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("user", *userID); err != nil {
		return err
	}

	ps, err := a.backend.Ledger.ListByStatus(ctx, *userID, models.Status(*status))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tAMOUNT\tPHONE\tPROVIDER STATE\tCREATED")
	for _, p := range ps {
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\t%s\n", p.ID, p.Status, p.Amount.StringFixed(2), p.Currency,
			p.PhoneNumber, p.ProviderState, p.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func (a *App) printPayment(p *models.Payment) {
	fmt.Fprintf(a.out, "payment %s: %s %s %s", p.ID, p.Status, p.Amount.StringFixed(2), p.Currency)
	if p.ProviderInvoiceID != "" {
		fmt.Fprintf(a.out, " invoice=%s", p.ProviderInvoiceID)
	}
	if p.ProviderPaymentID != "" {
		fmt.Fprintf(a.out, " provider_payment=%s", p.ProviderPaymentID)
	}
	if p.PackageExpiryTime != nil {
		fmt.Fprintf(a.out, " expires=%s", p.PackageExpiryTime.UTC().Format("2006-01-02 15:04:05Z"))
	}
	if p.ErrorMessage != "" {
		fmt.Fprintf(a.out, " error=%q", p.ErrorMessage)
	}
	fmt.Fprintln(a.out)
}

func (a *App) printCheck(res *services.CheckResult) {
	a.printPayment(res.Payment)
	if !res.Queried {
		fmt.Fprintln(a.out, "  already settled, provider not queried")
		return
	}
	fmt.Fprintf(a.out, "  provider state %q (%s), applied=%t\n", res.ProviderState, res.Outcome, res.Applied)
	if !res.AmountMatches() {
		fmt.Fprintf(a.out, "  WARNING: provider reports %s %s\n", res.ProviderAmount.Decimal.StringFixed(2), res.ProviderCurrency)
	}
	if res.ArchiveErr != nil {
		fmt.Fprintf(a.out, "  observation not archived: %v\n", res.ArchiveErr)
	}
	if res.GrantErr != nil {
		fmt.Fprintf(a.out, "  access not granted: %v\n", res.GrantErr)
	}
}
