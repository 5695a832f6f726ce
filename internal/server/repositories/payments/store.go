// Package payments persists Payment rows. Every status mutation goes through
// Store.Mutate, which runs the caller's read-modify-write function while the
// row is locked so that concurrent callers observe each other's writes.
package payments

import (
	"context"

	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
)

// MutateFunc edits p in place and reports whether anything changed.
// Returning false skips the write; returning an error aborts it.
type MutateFunc func(p *models.Payment) (changed bool, err error)

type Store interface {
	Create(ctx context.Context, p *models.Payment) error
	Get(ctx context.Context, id string) (*models.Payment, error)
	Mutate(ctx context.Context, id string, fn MutateFunc) (*models.Payment, error)
	ListByStatus(ctx context.Context, userID string, status models.Status) ([]*models.Payment, error)
}
