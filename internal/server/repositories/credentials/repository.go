package credentials

import (
	"context"

	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, rec *models.CredentialRecord) error
	Get(ctx context.Context, userID, id string) (*models.CredentialRecord, error)
	GetActive(ctx context.Context, userID, provider string) (*models.CredentialRecord, error)
	HasActive(ctx context.Context, userID, provider, exceptID string) (bool, error)
	List(ctx context.Context, userID string) ([]*models.CredentialRecord, error)
	ListAll(ctx context.Context) ([]*models.CredentialRecord, error)
	Update(ctx context.Context, rec *models.CredentialRecord) error
	Delete(ctx context.Context, userID, id string) error
}
