package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/hotspotpay/internal/dbx"
	"github.com/dmitrijs2005/hotspotpay/internal/server/repositories/catalog"
	"github.com/dmitrijs2005/hotspotpay/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/hotspotpay/internal/server/repositories/payments"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Credentials(db dbx.DBTX) credentials.Repository
	Catalog(db dbx.DBTX) catalog.Repository
	Payments(db *sql.DB) payments.Store
}
