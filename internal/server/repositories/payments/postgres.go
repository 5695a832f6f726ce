package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/dbx"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
)

const selectColumns = `id, user_id, router_id, package_id, package_duration_hours, phone_number, amount, currency,
		payment_method, payment_provider, status, provider_invoice_id, provider_payment_id, provider_state,
		mac_address, ip_address, package_expiry_time, created_at, updated_at, completed_at, error_message, retry_count`

// PostgresStore implements Store. Mutate locks the row with SELECT ... FOR UPDATE
// inside a READ COMMITTED transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Payment) error {
	query :=
		`INSERT INTO payments (id, user_id, router_id, package_id, package_duration_hours, phone_number, amount,
			currency, payment_method, payment_provider, status, mac_address, ip_address, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.RouterID, p.PackageID, p.PackageDurationHours, p.PhoneNumber, p.Amount,
		p.Currency, p.PaymentMethod, p.PaymentProvider, string(p.Status), p.MACAddress, p.IPAddress,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Payment, error) {
	return getPayment(ctx, s.db, `SELECT `+selectColumns+` FROM payments WHERE id = $1`, id)
}

func (s *PostgresStore) Mutate(ctx context.Context, id string, fn MutateFunc) (*models.Payment, error) {
	var out *models.Payment

	err := dbx.WithTx(ctx, s.db, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		p, err := getPayment(ctx, tx, `SELECT `+selectColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}

		changed, err := fn(p)
		if err != nil {
			return err
		}
		if changed {
			if err := updatePayment(ctx, tx, p); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, userID string, status models.Status) ([]*models.Payment, error) {
	query := `SELECT ` + selectColumns + ` FROM payments
		 WHERE user_id = $1 AND status = $2
		 ORDER BY created_at DESC
		`
	rows, err := s.db.QueryContext(ctx, query, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func updatePayment(ctx context.Context, db dbx.DBTX, p *models.Payment) error {
	query :=
		`UPDATE payments
		 SET status = $2, provider_invoice_id = $3, provider_payment_id = $4, provider_state = $5,
		     package_expiry_time = $6, completed_at = $7, error_message = $8, retry_count = $9, updated_at = $10
		 WHERE id = $1
		`
	res, err := db.ExecContext(ctx, query,
		p.ID, string(p.Status), p.ProviderInvoiceID, p.ProviderPaymentID, p.ProviderState,
		nullTime(p.PackageExpiryTime), nullTime(p.CompletedAt), p.ErrorMessage, p.RetryCount, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getPayment(ctx context.Context, db dbx.DBTX, query, id string) (*models.Payment, error) {
	p, err := scanPayment(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	p := &models.Payment{}
	var status string
	var expiry, completed sql.NullTime

	err := row.Scan(&p.ID, &p.UserID, &p.RouterID, &p.PackageID, &p.PackageDurationHours, &p.PhoneNumber,
		&p.Amount, &p.Currency, &p.PaymentMethod, &p.PaymentProvider, &status,
		&p.ProviderInvoiceID, &p.ProviderPaymentID, &p.ProviderState, &p.MACAddress, &p.IPAddress,
		&expiry, &p.CreatedAt, &p.UpdatedAt, &completed, &p.ErrorMessage, &p.RetryCount)
	if err != nil {
		return nil, err
	}

	p.Status = models.Status(status)
	if expiry.Valid {
		t := expiry.Time
		p.PackageExpiryTime = &t
	}
	if completed.Valid {
		t := completed.Time
		p.CompletedAt = &t
	}
	return p, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
