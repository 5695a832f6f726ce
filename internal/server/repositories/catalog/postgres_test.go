package catalog

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var routerColumns = []string{"id", "user_id", "name", "host", "port", "username", "encrypted_password", "use_https"}

func TestGetRouter(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "host", "port", "username", "encrypted_password", "use_https"}).
		AddRow("r-1", "u-1", "Cafe", "10.0.0.1", 80, "admin", []byte{9}, false)
	mock.ExpectQuery(`(?s)FROM\s+routers\s+WHERE\s+id\s*=\s*\$1\s+AND\s+user_id\s*=\s*\$2`).
		WithArgs("r-1", "u-1").WillReturnRows(rows)

	r, err := repo.GetRouter(context.Background(), "u-1", "r-1")
	require.NoError(t, err)
	assert.Equal(t, "Cafe", r.Name)
	assert.Equal(t, 80, r.Port)
}

func TestGetRouter_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+routers`).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetRouter(context.Background(), "u-2", "r-1")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetPackage_ScopedByOwner(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "router_id", "name", "package_type", "duration_hours", "price", "currency", "is_active"}).
		AddRow("p-1", "r-1", "Daily", "daily", 24, "100.00", "KES", true)
	mock.ExpectQuery(`(?s)FROM\s+packages\s+p\s+JOIN\s+routers\s+r\s+ON\s+r\.id\s*=\s*p\.router_id\s+WHERE\s+p\.id\s*=\s*\$1\s+AND\s+r\.user_id\s*=\s*\$2`).
		WithArgs("p-1", "u-1").WillReturnRows(rows)

	p, err := repo.GetPackage(context.Background(), "u-1", "p-1")
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("100")))
	assert.Equal(t, 24, p.DurationHours)
	assert.True(t, p.IsActive)
}

func TestGetPackage_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+packages`).WillReturnError(errors.New("db err"))

	_, err := repo.GetPackage(context.Background(), "u-1", "p-1")
	require.ErrorContains(t, err, "db error: db err")
}

func TestListRouters(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(routerColumns).
		AddRow("r-1", "u-1", "Cafe", "10.0.0.1", 80, "admin", []byte{9}, false).
		AddRow("r-2", "u-2", "Hostel", "10.0.0.2", 443, "admin", nil, true)
	mock.ExpectQuery(`(?s)FROM\s+routers\s+ORDER\s+BY`).WillReturnRows(rows)

	got, err := repo.ListRouters(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []byte{9}, got[0].EncryptedPassword)
	assert.Empty(t, got[1].EncryptedPassword)
	assert.True(t, got[1].UseHTTPS)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRouters_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+routers`).WillReturnError(errors.New("db err"))

	_, err := repo.ListRouters(context.Background())
	require.ErrorContains(t, err, "db error: db err")
}

func TestSetRouterPassword(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+routers\s+SET\s+encrypted_password\s*=\s*\$1.*WHERE\s+id\s*=\s*\$2\s+AND\s+user_id\s*=\s*\$3`).
		WithArgs([]byte{1, 2}, "r-1", "u-1").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetRouterPassword(context.Background(), "u-1", "r-1", []byte{1, 2}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRouterPassword_OtherOwner(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+routers`).WithArgs([]byte{1}, "r-1", "u-2").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetRouterPassword(context.Background(), "u-2", "r-1", []byte{1})
	require.ErrorIs(t, err, common.ErrorNotFound)
}
