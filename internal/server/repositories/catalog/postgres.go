// Package catalog provides lookups of routers and packages, always scoped to
// the owning operator, and stores the sealed router password.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/dbx"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetRouter(ctx context.Context, userID, routerID string) (*models.Router, error) {
	query :=
		`SELECT id, user_id, name, host, port, username, encrypted_password, use_https
		 FROM routers
		 WHERE id = $1 AND user_id = $2
		`
	router := &models.Router{}
	err := r.db.QueryRowContext(ctx, query, routerID, userID).Scan(
		&router.ID, &router.UserID, &router.Name, &router.Host, &router.Port,
		&router.Username, &router.EncryptedPassword, &router.UseHTTPS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return router, nil
}

// GetPackage only returns packages on routers owned by userID.
func (r *PostgresRepository) GetPackage(ctx context.Context, userID, packageID string) (*models.Package, error) {
	query :=
		`SELECT p.id, p.router_id, p.name, p.package_type, p.duration_hours, p.price, p.currency, p.is_active
		 FROM packages p
		 JOIN routers r ON r.id = p.router_id
		 WHERE p.id = $1 AND r.user_id = $2
		`
	pkg := &models.Package{}
	err := r.db.QueryRowContext(ctx, query, packageID, userID).Scan(
		&pkg.ID, &pkg.RouterID, &pkg.Name, &pkg.PackageType, &pkg.DurationHours,
		&pkg.Price, &pkg.Currency, &pkg.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return pkg, nil
}

func (r *PostgresRepository) ListRouters(ctx context.Context) ([]*models.Router, error) {
	query :=
		`SELECT id, user_id, name, host, port, username, encrypted_password, use_https
		 FROM routers
		 ORDER BY user_id, name
		`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Router
	for rows.Next() {
		router := &models.Router{}
		if err := rows.Scan(&router.ID, &router.UserID, &router.Name, &router.Host, &router.Port,
			&router.Username, &router.EncryptedPassword, &router.UseHTTPS); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, router)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) SetRouterPassword(ctx context.Context, userID, routerID string, encrypted []byte) error {
	query :=
		`UPDATE routers SET encrypted_password = $1, updated_at = now()
		 WHERE id = $2 AND user_id = $3
		`
	res, err := r.db.ExecContext(ctx, query, encrypted, routerID, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
