package services

import (
	"bytes"
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/cryptox"
	"github.com/dmitrijs2005/hotspotpay/internal/dbx"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/dmitrijs2005/hotspotpay/internal/server/repositories/catalog"
	"github.com/dmitrijs2005/hotspotpay/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/hotspotpay/internal/server/repositories/payments"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func newTestVault(t *testing.T) *cryptox.Vault {
	t.Helper()
	v, err := cryptox.NewVault(bytes.Repeat([]byte{3}, cryptox.KeySize))
	require.NoError(t, err)
	return v
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- catalog ---

type fakeCatalog struct {
	routers  map[string]*models.Router
	packages map[string]*models.Package
	err      error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		routers: map[string]*models.Router{
			"r-1": {ID: "r-1", UserID: "u-1", Name: "lobby"},
			"r-2": {ID: "r-2", UserID: "u-1", Name: "rooftop"},
		},
		packages: map[string]*models.Package{
			"p-day": {ID: "p-day", RouterID: "r-1", Name: "Day", DurationHours: 24,
				Price: decimal.RequireFromString("100.00"), Currency: "KES", IsActive: true},
			"p-old": {ID: "p-old", RouterID: "r-1", Name: "Retired", DurationHours: 1,
				Price: decimal.RequireFromString("10.00"), Currency: "KES", IsActive: false},
		},
	}
}

func (c *fakeCatalog) Router(ctx context.Context, userID, id string) (*models.Router, error) {
	if c.err != nil {
		return nil, c.err
	}
	r, ok := c.routers[id]
	if !ok || r.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return r, nil
}

func (c *fakeCatalog) Package(ctx context.Context, userID, id string) (*models.Package, error) {
	if c.err != nil {
		return nil, c.err
	}
	p, ok := c.packages[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if _, err := c.Router(ctx, userID, p.RouterID); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *fakeCatalog) GetRouter(ctx context.Context, userID, id string) (*models.Router, error) {
	return c.Router(ctx, userID, id)
}

func (c *fakeCatalog) GetPackage(ctx context.Context, userID, id string) (*models.Package, error) {
	return c.Package(ctx, userID, id)
}

func (c *fakeCatalog) ListRouters(ctx context.Context) ([]*models.Router, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([]*models.Router, 0, len(c.routers))
	for _, r := range c.routers {
		out = append(out, r)
	}
	return out, nil
}

func (c *fakeCatalog) SetRouterPassword(ctx context.Context, userID, id string, encrypted []byte) error {
	if c.err != nil {
		return c.err
	}
	r, ok := c.routers[id]
	if !ok || r.UserID != userID {
		return common.ErrorNotFound
	}
	stored := *r
	stored.EncryptedPassword = encrypted
	c.routers[id] = &stored
	return nil
}

// --- gateway ---

type fakeGateway struct {
	mu sync.Mutex

	initiateRes *InitiateResult
	initiateErr error
	status      *ProviderStatus
	statusErr   error

	// beforeStatus, when set, runs inside Status before it returns.
	beforeStatus func(ctx context.Context)

	statusCalls   int32
	initiateCalls int32
	lastID        CorrelationID
}

func (g *fakeGateway) Initiate(ctx context.Context, p *models.Payment) (*InitiateResult, error) {
	atomic.AddInt32(&g.initiateCalls, 1)
	if g.initiateErr != nil {
		return nil, g.initiateErr
	}
	return g.initiateRes, nil
}

func (g *fakeGateway) Status(ctx context.Context, id CorrelationID) (*ProviderStatus, error) {
	atomic.AddInt32(&g.statusCalls, 1)
	g.mu.Lock()
	g.lastID = id
	g.mu.Unlock()
	if g.beforeStatus != nil {
		g.beforeStatus(ctx)
	}
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	st := *g.status
	return &st, nil
}

func (g *fakeGateway) StatusCalls() int { return int(atomic.LoadInt32(&g.statusCalls)) }

type fakeResolver struct {
	gw    Gateway
	err   error
	calls int32
}

func (r *fakeResolver) Gateway(ctx context.Context, userID, provider string) (Gateway, error) {
	atomic.AddInt32(&r.calls, 1)
	if r.err != nil {
		return nil, r.err
	}
	return r.gw, nil
}

type countingGranter struct {
	mu      sync.Mutex
	granted []*models.Payment
	err     error
}

func (g *countingGranter) Grant(ctx context.Context, p *models.Payment) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.granted = append(g.granted, p.Clone())
	return g.err
}

func (g *countingGranter) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.granted)
}

type recordingObserver struct {
	mu  sync.Mutex
	obs []Observation
	err error
}

func (o *recordingObserver) Observe(ctx context.Context, ob Observation) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obs = append(o.obs, ob)
	return o.err
}

// --- credentials repository ---

type fakeCredentialsRepo struct {
	mu   sync.Mutex
	recs map[string]*models.CredentialRecord

	createErr error
}

func newFakeCredentialsRepo() *fakeCredentialsRepo {
	return &fakeCredentialsRepo{recs: map[string]*models.CredentialRecord{}}
}

func (r *fakeCredentialsRepo) put(rec *models.CredentialRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *rec
	r.recs[rec.ID] = &c
}

func (r *fakeCredentialsRepo) Create(ctx context.Context, rec *models.CredentialRecord) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.put(rec)
	return nil
}

func (r *fakeCredentialsRepo) Get(ctx context.Context, userID, id string) (*models.CredentialRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok || rec.UserID != userID {
		return nil, common.ErrorNotFound
	}
	c := *rec
	return &c, nil
}

func (r *fakeCredentialsRepo) GetActive(ctx context.Context, userID, provider string) (*models.CredentialRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recs {
		if rec.UserID == userID && rec.Provider == provider && rec.IsActive {
			c := *rec
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeCredentialsRepo) HasActive(ctx context.Context, userID, provider, exceptID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recs {
		if rec.UserID == userID && rec.Provider == provider && rec.IsActive && rec.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeCredentialsRepo) List(ctx context.Context, userID string) ([]*models.CredentialRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CredentialRecord
	for _, rec := range r.recs {
		if rec.UserID == userID {
			c := *rec
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *fakeCredentialsRepo) ListAll(ctx context.Context) ([]*models.CredentialRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CredentialRecord
	for _, rec := range r.recs {
		c := *rec
		out = append(out, &c)
	}
	return out, nil
}

func (r *fakeCredentialsRepo) Update(ctx context.Context, rec *models.CredentialRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recs[rec.ID]; !ok {
		return common.ErrorNotFound
	}
	c := *rec
	r.recs[rec.ID] = &c
	return nil
}

func (r *fakeCredentialsRepo) Delete(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok || rec.UserID != userID {
		return common.ErrorNotFound
	}
	delete(r.recs, id)
	return nil
}

// --- repository manager ---

type fakeRepoManager struct {
	creds    *fakeCredentialsRepo
	catalog  *fakeCatalog
	payments payments.Store
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error     { return nil }
func (m *fakeRepoManager) Credentials(db dbx.DBTX) credentials.Repository { return m.creds }
func (m *fakeRepoManager) Catalog(db dbx.DBTX) catalog.Repository         { return m.catalog }
func (m *fakeRepoManager) Payments(db *sql.DB) payments.Store             { return m.payments }
