package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/cryptox"
	"github.com/dmitrijs2005/hotspotpay/internal/dbx"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/dmitrijs2005/hotspotpay/internal/server/repositories/repomanager"
)

// SealRouterPassword encrypts password onto r. An empty password clears it.
func SealRouterPassword(v *cryptox.Vault, r *models.Router, password string) error {
	if password == "" {
		r.EncryptedPassword = nil
		return nil
	}
	blob, err := v.Encrypt([]byte(password))
	if err != nil {
		return err
	}
	r.EncryptedPassword = blob
	return nil
}

// OpenRouterPassword decrypts the router password. A router without a
// stored password returns "" and no error.
func OpenRouterPassword(v *cryptox.Vault, r *models.Router) (string, error) {
	plain, err := v.Decrypt(r.EncryptedPassword)
	if err != nil {
		if errors.Is(err, common.ErrNoValue) {
			return "", nil
		}
		return "", fmt.Errorf("router %s password: %w", r.ID, err)
	}
	defer common.WipeByteArray(plain)
	return string(plain), nil
}

// RouterCheckResult reports whether one router password opens under the
// current key. Routers without a password always pass.
type RouterCheckResult struct {
	Router *models.Router
	Err    error
}

func (r RouterCheckResult) OK() bool { return r.Err == nil }

// RouterService keeps router admin passwords sealed under the vault key.
type RouterService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	vault       *cryptox.Vault
}

func NewRouterService(db *sql.DB, m repomanager.RepositoryManager, vault *cryptox.Vault) *RouterService {
	return &RouterService{db: db, repomanager: m, vault: vault}
}

// SetPassword seals password onto the router. An empty password clears it.
func (s *RouterService) SetPassword(ctx context.Context, userID, routerID, password string) (*models.Router, error) {
	var out *models.Router
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Catalog(tx)
		r, err := repo.GetRouter(ctx, userID, routerID)
		if err != nil {
			return err
		}
		if err := SealRouterPassword(s.vault, r, password); err != nil {
			return err
		}
		if err := repo.SetRouterPassword(ctx, userID, r.ID, r.EncryptedPassword); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Password loads the router and opens its password.
func (s *RouterService) Password(ctx context.Context, userID, routerID string) (string, error) {
	r, err := s.repomanager.Catalog(s.db).GetRouter(ctx, userID, routerID)
	if err != nil {
		return "", err
	}
	return OpenRouterPassword(s.vault, r)
}

// Check tries to open every stored router password under the current key.
// Routers that fail need their password set again.
func (s *RouterService) Check(ctx context.Context) ([]RouterCheckResult, error) {
	routers, err := s.repomanager.Catalog(s.db).ListRouters(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]RouterCheckResult, 0, len(routers))
	for _, r := range routers {
		_, err := OpenRouterPassword(s.vault, r)
		results = append(results, RouterCheckResult{Router: r, Err: err})
	}
	return results, nil
}
