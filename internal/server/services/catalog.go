package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/dmitrijs2005/hotspotpay/internal/server/repositories/repomanager"
)

// Catalog is the read-only router and package lookup used when creating
// payments. Lookups are scoped to the owning user.
type Catalog interface {
	Router(ctx context.Context, userID, id string) (*models.Router, error)
	Package(ctx context.Context, userID, id string) (*models.Package, error)
}

// RepositoryCatalog serves Catalog from the catalog repository.
type RepositoryCatalog struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewRepositoryCatalog(db *sql.DB, m repomanager.RepositoryManager) *RepositoryCatalog {
	return &RepositoryCatalog{db: db, repomanager: m}
}

func (c *RepositoryCatalog) Router(ctx context.Context, userID, id string) (*models.Router, error) {
	return c.repomanager.Catalog(c.db).GetRouter(ctx, userID, id)
}

func (c *RepositoryCatalog) Package(ctx context.Context, userID, id string) (*models.Package, error) {
	return c.repomanager.Catalog(c.db).GetPackage(ctx, userID, id)
}
