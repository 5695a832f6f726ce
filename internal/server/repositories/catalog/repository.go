package catalog

import (
	"context"

	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
)

type Repository interface {
	GetRouter(ctx context.Context, userID, routerID string) (*models.Router, error)
	GetPackage(ctx context.Context, userID, packageID string) (*models.Package, error)
	// ListRouters returns every router of every user.
	ListRouters(ctx context.Context) ([]*models.Router, error)
	// SetRouterPassword replaces the sealed router password; nil clears it.
	SetRouterPassword(ctx context.Context, userID, routerID string, encrypted []byte) error
}
