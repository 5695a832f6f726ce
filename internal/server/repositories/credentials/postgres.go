// Package credentials provides PostgreSQL-backed storage for per-user,
// per-provider payment credentials. Secret fields are stored as produced by
// the vault; this package never sees plaintext.
package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/dbx"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const selectColumns = `id, user_id, provider, api_key, encrypted_private_key, private_key_hash,
		environment, is_active, created_at, updated_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts rec. A second active record for the same (user, provider)
// violates the partial unique index and yields common.ErrConflict.
func (r *PostgresRepository) Create(ctx context.Context, rec *models.CredentialRecord) error {
	query :=
		`INSERT INTO payment_credentials (id, user_id, provider, api_key, encrypted_private_key,
			private_key_hash, environment, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.Provider, rec.APIKey, rec.EncryptedPrivateKey,
		rec.PrivateKeyHash, rec.Environment, rec.IsActive, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (*models.CredentialRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM payment_credentials
		 WHERE id = $1 AND user_id = $2
		`
	return scanOne(r.db.QueryRowContext(ctx, query, id, userID))
}

// GetActive returns the newest active record for the pair.
func (r *PostgresRepository) GetActive(ctx context.Context, userID, provider string) (*models.CredentialRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM payment_credentials
		 WHERE user_id = $1 AND provider = $2 AND is_active
		 ORDER BY created_at DESC
		 LIMIT 1
		`
	return scanOne(r.db.QueryRowContext(ctx, query, userID, provider))
}

// HasActive reports whether an active record other than exceptID exists for
// the pair. Pass an empty exceptID to consider every record.
func (r *PostgresRepository) HasActive(ctx context.Context, userID, provider, exceptID string) (bool, error) {
	query :=
		`SELECT EXISTS (
			SELECT 1 FROM payment_credentials
			WHERE user_id = $1 AND provider = $2 AND is_active AND id::text <> $3
		 )
		`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, provider, exceptID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string) ([]*models.CredentialRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM payment_credentials
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		`
	return r.query(ctx, query, userID)
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*models.CredentialRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM payment_credentials
		 ORDER BY user_id, provider
		`
	return r.query(ctx, query)
}

// Update writes every mutable field of rec. Zero rows affected means the
// record does not exist for that user.
func (r *PostgresRepository) Update(ctx context.Context, rec *models.CredentialRecord) error {
	query :=
		`UPDATE payment_credentials
		 SET api_key = $3, encrypted_private_key = $4, private_key_hash = $5,
		     environment = $6, is_active = $7, updated_at = $8
		 WHERE id = $1 AND user_id = $2
		`
	res, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.APIKey, rec.EncryptedPrivateKey, rec.PrivateKeyHash,
		rec.Environment, rec.IsActive, rec.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM payment_credentials WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.CredentialRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.CredentialRecord
	for rows.Next() {
		rec := &models.CredentialRecord{}
		if err := rows.Scan(scanTargets(rec)...); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func scanTargets(rec *models.CredentialRecord) []any {
	return []any{&rec.ID, &rec.UserID, &rec.Provider, &rec.APIKey, &rec.EncryptedPrivateKey,
		&rec.PrivateKeyHash, &rec.Environment, &rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt}
}

func scanOne(row *sql.Row) (*models.CredentialRecord, error) {
	rec := &models.CredentialRecord{}
	if err := row.Scan(scanTargets(rec)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: active credentials already exist for this provider", common.ErrConflict)
	}
	return fmt.Errorf("db error: %w", err)
}
