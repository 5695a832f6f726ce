package payments

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paymentColumns = []string{"id", "user_id", "router_id", "package_id", "package_duration_hours", "phone_number",
	"amount", "currency", "payment_method", "payment_provider", "status", "provider_invoice_id",
	"provider_payment_id", "provider_state", "mac_address", "ip_address", "package_expiry_time",
	"created_at", "updated_at", "completed_at", "error_message", "retry_count"}

var created = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresStore(db), mock, db
}

func pendingRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows(paymentColumns).AddRow(
		"pay-1", "u-1", "r-1", "p-1", 24, "0712345678",
		"100.00", "KES", "mpesa", "intasend", status, "INV-1",
		"", "PENDING", "", "", nil,
		created, created, nil, "", 0)
}

func TestCreate(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	p := &models.Payment{
		ID: "pay-1", UserID: "u-1", RouterID: "r-1", PackageID: "p-1", PackageDurationHours: 24,
		PhoneNumber: "0712345678", Amount: decimal.RequireFromString("100.00"), Currency: "KES",
		PaymentMethod: "mpesa", PaymentProvider: "intasend", Status: models.StatusPending,
		CreatedAt: created, UpdatedAt: created,
	}
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+payments`).
		WithArgs("pay-1", "u-1", "r-1", "p-1", 24, "0712345678", sqlmock.AnyArg(),
			"KES", "mpesa", "intasend", "pending", "", "", created, created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Create(context.Background(), p))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+payments\s+WHERE\s+id\s*=\s*\$1$`).WithArgs("pay-1").WillReturnRows(pendingRow("pending"))

	p, err := s.Get(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, p.Status)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(100)))
	assert.Nil(t, p.PackageExpiryTime)
	assert.Nil(t, p.CompletedAt)
	assert.Equal(t, "INV-1", p.ProviderInvoiceID)
}

func TestGet_NotFound(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+payments`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestMutate_WritesUnderRowLock(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	done := created.Add(time.Minute)
	exp := done.Add(24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)FROM\s+payments\s+WHERE\s+id\s*=\s*\$1\s+FOR\s+UPDATE`).WithArgs("pay-1").
		WillReturnRows(pendingRow("processing"))
	mock.ExpectExec(`(?s)^UPDATE\s+payments\s+SET\s+status\s*=\s*\$2`).
		WithArgs("pay-1", "completed", "INV-1", "", "COMPLETE", exp, done, "", 0, done).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := s.Mutate(context.Background(), "pay-1", func(p *models.Payment) (bool, error) {
		p.Status = models.StatusCompleted
		p.ProviderState = "COMPLETE"
		p.CompletedAt = &done
		p.PackageExpiryTime = &exp
		p.UpdatedAt = done
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, p.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMutate_UnchangedSkipsWrite(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR\s+UPDATE`).WithArgs("pay-1").WillReturnRows(pendingRow("completed"))
	mock.ExpectCommit()

	p, err := s.Mutate(context.Background(), "pay-1", func(p *models.Payment) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, p.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMutate_FnErrorRollsBack(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR\s+UPDATE`).WithArgs("pay-1").WillReturnRows(pendingRow("completed"))
	mock.ExpectRollback()

	_, err := s.Mutate(context.Background(), "pay-1", func(p *models.Payment) (bool, error) {
		return false, common.ErrInvalidTransition
	})
	require.ErrorIs(t, err, common.ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMutate_UpdateErrorRollsBack(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR\s+UPDATE`).WithArgs("pay-1").WillReturnRows(pendingRow("pending"))
	mock.ExpectExec(`UPDATE\s+payments`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.Mutate(context.Background(), "pay-1", func(p *models.Payment) (bool, error) {
		p.RetryCount++
		return true, nil
	})
	require.ErrorContains(t, err, "db error: disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByStatus(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)WHERE\s+user_id\s*=\s*\$1\s+AND\s+status\s*=\s*\$2`).WithArgs("u-1", "processing").
		WillReturnRows(pendingRow("processing"))

	list, err := s.ListByStatus(context.Background(), "u-1", models.StatusProcessing)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "pay-1", list[0].ID)
}
