package payments

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
)

// MemoryStore is an in-process Store. Mutate serializes on a single mutex,
// which gives the same at-most-one-writer guarantee as a row lock.
type MemoryStore struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payments: make(map[string]*models.Payment)}
}

func (s *MemoryStore) Create(ctx context.Context, p *models.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[p.ID]; ok {
		return common.ErrConflict
	}
	s.payments[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Mutate(ctx context.Context, id string, fn MutateFunc) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored, ok := s.payments[id]
	if !ok {
		return nil, common.ErrorNotFound
	}

	working := stored.Clone()
	changed, err := fn(working)
	if err != nil {
		return nil, err
	}
	if !changed {
		return stored.Clone(), nil
	}
	// commit point
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.payments[id] = working.Clone()
	return working, nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, userID string, status models.Status) ([]*models.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Payment
	for _, p := range s.payments {
		if p.UserID == userID && p.Status == status {
			result = append(result, p.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}
