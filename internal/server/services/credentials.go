package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/cryptox"
	"github.com/dmitrijs2005/hotspotpay/internal/dbx"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/dmitrijs2005/hotspotpay/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// CredentialError attaches record identity to a secret handling failure so a
// stale vault key can be diagnosed without exposing the secret.
type CredentialError struct {
	RecordID string
	UserID   string
	Provider string
	Err      error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential %s (user %s, provider %s): %v", e.RecordID, e.UserID, e.Provider, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// NewCredential is the input to CredentialService.Create.
type NewCredential struct {
	Provider    string
	APIKey      string
	PrivateKey  string
	Environment string
}

// CredentialUpdate carries optional changes; nil fields are left alone.
type CredentialUpdate struct {
	APIKey      *string
	PrivateKey  *string
	Environment *string
}

// ProbeResult reports whether one stored record decrypts under the current key.
type ProbeResult struct {
	Record *models.CredentialRecord
	Err    error
}

func (r ProbeResult) OK() bool { return r.Err == nil }

// CredentialService manages per-user, per-provider credentials. It keeps at
// most one active record per (user, provider) and routes every secret through
// the vault.
type CredentialService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	vault       *cryptox.Vault
	clock       Clock
}

func NewCredentialService(db *sql.DB, m repomanager.RepositoryManager, vault *cryptox.Vault, clock Clock) *CredentialService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &CredentialService{db: db, repomanager: m, vault: vault, clock: clock}
}

// SetSecret encrypts and digests plaintext onto rec. The plaintext is trimmed
// and must be at least common.MinSecretLength characters. rec is not
// persisted, and it is left untouched on error.
func (s *CredentialService) SetSecret(rec *models.CredentialRecord, plaintext string) error {
	secret := strings.TrimSpace(plaintext)
	if secret == "" {
		return fmt.Errorf("%w: private key is required", common.ErrValidation)
	}
	if len(secret) < common.MinSecretLength {
		return fmt.Errorf("%w: private key must be at least %d characters", common.ErrValidation, common.MinSecretLength)
	}

	blob, err := s.vault.Encrypt([]byte(secret))
	if err != nil {
		return err
	}
	rec.EncryptedPrivateKey = blob
	rec.PrivateKeyHash = cryptox.Digest([]byte(secret))
	return nil
}

// Secret decrypts the private key of rec. Failures are returned as
// *CredentialError wrapping the vault error kind.
func (s *CredentialService) Secret(rec *models.CredentialRecord) (string, error) {
	plain, err := s.vault.Decrypt(rec.EncryptedPrivateKey)
	if err != nil {
		return "", &CredentialError{RecordID: rec.ID, UserID: rec.UserID, Provider: rec.Provider, Err: err}
	}
	defer common.WipeByteArray(plain)
	return string(plain), nil
}

// VerifySecret compares candidate against the stored digest without decrypting.
func (s *CredentialService) VerifySecret(rec *models.CredentialRecord, candidate string) bool {
	return cryptox.Verify([]byte(strings.TrimSpace(candidate)), rec.PrivateKeyHash)
}

// Create stores a new active credential. An existing active record for the
// same provider yields common.ErrConflict.
func (s *CredentialService) Create(ctx context.Context, userID string, in NewCredential) (*models.CredentialRecord, error) {
	env := in.Environment
	if env == "" {
		env = models.EnvironmentSandbox
	}
	if err := validateCredential(in.Provider, in.APIKey, env); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rec := &models.CredentialRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		Provider:    in.Provider,
		APIKey:      strings.TrimSpace(in.APIKey),
		Environment: env,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.SetSecret(rec, in.PrivateKey); err != nil {
		return nil, err
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Credentials(tx)
		exists, err := repo.HasActive(ctx, userID, rec.Provider, "")
		if err != nil {
			return err
		}
		if exists {
			return conflictError(rec.Provider)
		}
		return repo.Create(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Update applies upd to the record. A new private key is re-encrypted under
// the current vault key, which is also how undecryptable records are repaired.
func (s *CredentialService) Update(ctx context.Context, userID, id string, upd CredentialUpdate) (*models.CredentialRecord, error) {
	var out *models.CredentialRecord
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Credentials(tx)
		rec, err := repo.Get(ctx, userID, id)
		if err != nil {
			return err
		}

		next := *rec
		if upd.APIKey != nil {
			next.APIKey = strings.TrimSpace(*upd.APIKey)
		}
		if upd.Environment != nil {
			next.Environment = *upd.Environment
		}
		if err := validateCredential(next.Provider, next.APIKey, next.Environment); err != nil {
			return err
		}
		if upd.PrivateKey != nil {
			if err := s.SetSecret(&next, *upd.PrivateKey); err != nil {
				return err
			}
		}
		next.UpdatedAt = s.clock.Now()

		if err := repo.Update(ctx, &next); err != nil {
			return err
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Deactivate clears the active flag so a replacement can be created.
func (s *CredentialService) Deactivate(ctx context.Context, userID, id string) (*models.CredentialRecord, error) {
	return s.setActive(ctx, userID, id, false)
}

// Activate sets the active flag, failing with common.ErrConflict when another
// record for the provider is already active.
func (s *CredentialService) Activate(ctx context.Context, userID, id string) (*models.CredentialRecord, error) {
	return s.setActive(ctx, userID, id, true)
}

func (s *CredentialService) setActive(ctx context.Context, userID, id string, active bool) (*models.CredentialRecord, error) {
	var out *models.CredentialRecord
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Credentials(tx)
		rec, err := repo.Get(ctx, userID, id)
		if err != nil {
			return err
		}
		if rec.IsActive == active {
			out = rec
			return nil
		}
		if active {
			exists, err := repo.HasActive(ctx, userID, rec.Provider, rec.ID)
			if err != nil {
				return err
			}
			if exists {
				return conflictError(rec.Provider)
			}
		}
		rec.IsActive = active
		rec.UpdatedAt = s.clock.Now()
		if err := repo.Update(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *CredentialService) Delete(ctx context.Context, userID, id string) error {
	return s.repomanager.Credentials(s.db).Delete(ctx, userID, id)
}

func (s *CredentialService) Get(ctx context.Context, userID, id string) (*models.CredentialRecord, error) {
	return s.repomanager.Credentials(s.db).Get(ctx, userID, id)
}

// ActiveFor returns the active record for the provider, or
// common.ErrorNotFound when the user has not configured one.
func (s *CredentialService) ActiveFor(ctx context.Context, userID, provider string) (*models.CredentialRecord, error) {
	return s.repomanager.Credentials(s.db).GetActive(ctx, userID, provider)
}

func (s *CredentialService) List(ctx context.Context, userID string) ([]*models.CredentialRecord, error) {
	return s.repomanager.Credentials(s.db).List(ctx, userID)
}

// Reveal loads a record and decrypts its private key.
func (s *CredentialService) Reveal(ctx context.Context, userID, id string) (string, error) {
	rec, err := s.Get(ctx, userID, id)
	if err != nil {
		return "", err
	}
	return s.Secret(rec)
}

// Verify loads a record and checks candidate against its digest.
func (s *CredentialService) Verify(ctx context.Context, userID, id, candidate string) (bool, error) {
	rec, err := s.Get(ctx, userID, id)
	if err != nil {
		return false, err
	}
	return s.VerifySecret(rec, candidate), nil
}

// Probe tries to decrypt every stored record under the current key.
// Records that fail need their private key set again through Update.
func (s *CredentialService) Probe(ctx context.Context) ([]ProbeResult, error) {
	recs, err := s.repomanager.Credentials(s.db).ListAll(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]ProbeResult, 0, len(recs))
	for _, rec := range recs {
		_, err := s.Secret(rec)
		results = append(results, ProbeResult{Record: rec, Err: err})
	}
	return results, nil
}

func validateCredential(provider, apiKey, environment string) error {
	var errs []error
	if !models.ValidProvider(provider) {
		errs = append(errs, fmt.Errorf("unsupported provider %q", provider))
	}
	if !models.ValidEnvironment(environment) {
		errs = append(errs, fmt.Errorf("unsupported environment %q", environment))
	}
	if len(strings.TrimSpace(apiKey)) < common.MinSecretLength {
		errs = append(errs, fmt.Errorf("api key must be at least %d characters", common.MinSecretLength))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", common.ErrValidation, errors.Join(errs...))
	}
	return nil
}

func conflictError(provider string) error {
	return fmt.Errorf("%w: an active %s credential already exists", common.ErrConflict, models.ProviderDisplayName(provider))
}
