package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/cryptox"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey = "ISPubKey_test_0123456789"
	testSecret = "ISSecretKey_test_abcdefghij"
)

func newCredentialService(t *testing.T, db *sql.DB) (*CredentialService, *fakeCredentialsRepo) {
	t.Helper()
	repo := newFakeCredentialsRepo()
	rm := &fakeRepoManager{creds: repo}
	return NewCredentialService(db, rm, newTestVault(t), &fakeClock{now: t0}), repo
}

func TestSetSecret_RoundTrip(t *testing.T) {
	s, _ := newCredentialService(t, nil)
	rec := &models.CredentialRecord{ID: "c-1", UserID: "u-1", Provider: models.ProviderIntaSend}

	require.NoError(t, s.SetSecret(rec, "  "+testSecret+"\n"))
	assert.NotEmpty(t, rec.EncryptedPrivateKey)
	assert.False(t, bytes.Contains(rec.EncryptedPrivateKey, []byte(testSecret)))
	assert.Equal(t, cryptox.Digest([]byte(testSecret)), rec.PrivateKeyHash)

	got, err := s.Secret(rec)
	require.NoError(t, err)
	assert.Equal(t, testSecret, got)

	assert.True(t, s.VerifySecret(rec, testSecret))
	assert.False(t, s.VerifySecret(rec, testSecret+"x"))
}

func TestSetSecret_RejectsShortAndEmpty(t *testing.T) {
	s, _ := newCredentialService(t, nil)

	for _, in := range []string{"", "   ", "abcde", "123456789"} {
		rec := &models.CredentialRecord{ID: "c-1", EncryptedPrivateKey: []byte("old"), PrivateKeyHash: "old-hash"}
		before := *rec

		err := s.SetSecret(rec, in)
		require.ErrorIs(t, err, common.ErrValidation, "%q", in)
		assert.Empty(t, cmp.Diff(before, *rec), "record must not change on error")
	}
}

func TestSetSecret_UnconfiguredVault(t *testing.T) {
	s := NewCredentialService(nil, &fakeRepoManager{}, nil, nil)
	rec := &models.CredentialRecord{}

	err := s.SetSecret(rec, testSecret)
	require.ErrorIs(t, err, common.ErrConfiguration)
	assert.Empty(t, rec.EncryptedPrivateKey)
}

func TestSecret_WrongKeyCarriesRecordIdentity(t *testing.T) {
	s, _ := newCredentialService(t, nil)
	rec := &models.CredentialRecord{ID: "c-9", UserID: "u-1", Provider: models.ProviderIntaSend}
	require.NoError(t, s.SetSecret(rec, testSecret))

	other, err := cryptox.NewVault(bytes.Repeat([]byte{4}, cryptox.KeySize))
	require.NoError(t, err)
	s.vault = other

	_, err = s.Secret(rec)
	require.ErrorIs(t, err, common.ErrDecryption)

	var credErr *CredentialError
	require.True(t, errors.As(err, &credErr))
	assert.Equal(t, "c-9", credErr.RecordID)
	assert.Equal(t, "u-1", credErr.UserID)
	assert.Equal(t, "intasend", credErr.Provider)
	assert.NotContains(t, err.Error(), testSecret)

	// verification never decrypts, so it still works
	assert.True(t, s.VerifySecret(rec, testSecret))
}

func TestSecret_NoValue(t *testing.T) {
	s, _ := newCredentialService(t, nil)
	_, err := s.Secret(&models.CredentialRecord{ID: "c-1"})
	require.ErrorIs(t, err, common.ErrNoValue)
	require.NotErrorIs(t, err, common.ErrDecryption)
}

func TestCredentialCreate(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	s, repo := newCredentialService(t, db)
	rec, err := s.Create(context.Background(), "u-1", NewCredential{
		Provider: models.ProviderIntaSend, APIKey: testAPIKey, PrivateKey: testSecret,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, models.EnvironmentSandbox, rec.Environment)
	assert.True(t, rec.IsActive)
	assert.Equal(t, t0, rec.CreatedAt)

	stored, err := repo.Get(context.Background(), "u-1", rec.ID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(rec, stored))
}

func TestCredentialCreate_ConflictRollsBack(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	s, repo := newCredentialService(t, db)
	repo.put(&models.CredentialRecord{ID: "c-old", UserID: "u-1", Provider: models.ProviderIntaSend, IsActive: true})

	_, err := s.Create(context.Background(), "u-1", NewCredential{
		Provider: models.ProviderIntaSend, APIKey: testAPIKey, PrivateKey: testSecret, Environment: models.EnvironmentLive,
	})
	require.ErrorIs(t, err, common.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialCreate_UniqueIndexConflict(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	s, repo := newCredentialService(t, db)
	repo.createErr = common.ErrConflict

	_, err := s.Create(context.Background(), "u-1", NewCredential{
		Provider: models.ProviderIntaSend, APIKey: testAPIKey, PrivateKey: testSecret,
	})
	require.ErrorIs(t, err, common.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialCreate_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   NewCredential
	}{
		{"unknown provider", NewCredential{Provider: "paypal", APIKey: testAPIKey, PrivateKey: testSecret}},
		{"unknown environment", NewCredential{Provider: "intasend", APIKey: testAPIKey, PrivateKey: testSecret, Environment: "prod"}},
		{"short api key", NewCredential{Provider: "intasend", APIKey: "abc", PrivateKey: testSecret}},
		{"short private key", NewCredential{Provider: "intasend", APIKey: testAPIKey, PrivateKey: "12345"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, repo := newCredentialService(t, nil)
			_, err := s.Create(context.Background(), "u-1", tt.in)
			require.ErrorIs(t, err, common.ErrValidation)
			assert.Empty(t, repo.recs)
		})
	}
}

func seedCredential(t *testing.T, s *CredentialService, repo *fakeCredentialsRepo, id string, active bool) *models.CredentialRecord {
	t.Helper()
	rec := &models.CredentialRecord{ID: id, UserID: "u-1", Provider: models.ProviderIntaSend, APIKey: testAPIKey,
		Environment: models.EnvironmentSandbox, IsActive: active}
	require.NoError(t, s.SetSecret(rec, testSecret))
	repo.put(rec)
	return rec
}

func TestCredentialUpdate_RotatesSecret(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	s, repo := newCredentialService(t, db)
	orig := seedCredential(t, s, repo, "c-1", true)

	newSecret := "ISSecretKey_live_rotated_42"
	live := models.EnvironmentLive
	rec, err := s.Update(context.Background(), "u-1", "c-1", CredentialUpdate{PrivateKey: &newSecret, Environment: &live})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.NotEqual(t, orig.EncryptedPrivateKey, rec.EncryptedPrivateKey)
	assert.True(t, rec.IsLive())
	got, err := s.Reveal(context.Background(), "u-1", "c-1")
	require.NoError(t, err)
	assert.Equal(t, newSecret, got)
}

func TestCredentialUpdate_ShortSecretLeavesRecord(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	s, repo := newCredentialService(t, db)
	orig := seedCredential(t, s, repo, "c-1", true)

	short := "12345"
	_, err := s.Update(context.Background(), "u-1", "c-1", CredentialUpdate{PrivateKey: &short})
	require.ErrorIs(t, err, common.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())

	stored, err := repo.Get(context.Background(), "u-1", "c-1")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(orig, stored))
}

func TestCredentialUpdate_NotFound(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	s, _ := newCredentialService(t, db)
	_, err := s.Update(context.Background(), "u-1", "missing", CredentialUpdate{})
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestCredentialDeactivateActivate(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	ctx := context.Background()

	s, repo := newCredentialService(t, db)
	seedCredential(t, s, repo, "c-1", true)

	mock.ExpectBegin()
	mock.ExpectCommit()
	rec, err := s.Deactivate(ctx, "u-1", "c-1")
	require.NoError(t, err)
	assert.False(t, rec.IsActive)

	// a replacement can now be created
	mock.ExpectBegin()
	mock.ExpectCommit()
	_, err = s.Create(ctx, "u-1", NewCredential{Provider: models.ProviderIntaSend, APIKey: testAPIKey, PrivateKey: testSecret})
	require.NoError(t, err)

	// re-activating the old one conflicts with the replacement
	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = s.Activate(ctx, "u-1", "c-1")
	require.ErrorIs(t, err, common.ErrConflict)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialReads(t *testing.T) {
	s, repo := newCredentialService(t, nil)
	ctx := context.Background()
	seedCredential(t, s, repo, "c-1", true)
	seedCredential(t, s, repo, "c-2", false)

	active, err := s.ActiveFor(ctx, "u-1", models.ProviderIntaSend)
	require.NoError(t, err)
	assert.Equal(t, "c-1", active.ID)

	_, err = s.ActiveFor(ctx, "u-1", models.ProviderKopoKopo)
	require.ErrorIs(t, err, common.ErrorNotFound)

	list, err := s.List(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	ok, err := s.Verify(ctx, "u-1", "c-2", testSecret)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Get(ctx, "u-2", "c-1")
	require.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, s.Delete(ctx, "u-1", "c-2"))
	_, err = s.Get(ctx, "u-1", "c-2")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestCredentialProbe(t *testing.T) {
	s, repo := newCredentialService(t, nil)
	seedCredential(t, s, repo, "c-good", true)
	repo.put(&models.CredentialRecord{ID: "c-stale", UserID: "u-2", Provider: "intasend", EncryptedPrivateKey: []byte{1, 2, 3}})

	results, err := s.Probe(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[string]ProbeResult{}
	for _, r := range results {
		byID[r.Record.ID] = r
	}
	assert.True(t, byID["c-good"].OK())
	assert.False(t, byID["c-stale"].OK())
	assert.ErrorIs(t, byID["c-stale"].Err, common.ErrDecryption)
}
