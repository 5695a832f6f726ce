package intasend

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/dmitrijs2005/hotspotpay/internal/server/services"
	"golang.org/x/time/rate"
)

// CredentialSource is the part of services.CredentialService the resolver needs.
type CredentialSource interface {
	ActiveFor(ctx context.Context, userID, provider string) (*models.CredentialRecord, error)
	Secret(rec *models.CredentialRecord) (string, error)
}

// Settings are the process-wide parts of a Client configuration.
type Settings struct {
	SandboxURL    string
	LiveURL       string
	CallbackURL   string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	HTTPClient    *http.Client
}

// Resolver builds a Client from the user's active IntaSend credential.
// Each user gets one rate limiter that outlives individual clients.
type Resolver struct {
	creds    CredentialSource
	settings Settings

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ services.GatewayResolver = (*Resolver)(nil)

func NewResolver(creds CredentialSource, settings Settings) *Resolver {
	return &Resolver{creds: creds, settings: settings, limiters: make(map[string]*rate.Limiter)}
}

func (r *Resolver) Gateway(ctx context.Context, userID, provider string) (services.Gateway, error) {
	if provider != models.ProviderIntaSend {
		return nil, fmt.Errorf("%w: no gateway for provider %q", common.ErrConfiguration, provider)
	}

	rec, err := r.creds.ActiveFor(ctx, userID, provider)
	if err != nil {
		return nil, fmt.Errorf("no active %s credential: %w", models.ProviderDisplayName(provider), err)
	}
	secret, err := r.creds.Secret(rec)
	if err != nil {
		return nil, err
	}

	baseURL := r.settings.SandboxURL
	if rec.IsLive() {
		baseURL = r.settings.LiveURL
	}

	return NewClient(Options{
		BaseURL:        baseURL,
		PublishableKey: rec.APIKey,
		SecretKey:      secret,
		CallbackURL:    r.settings.CallbackURL,
		Timeout:        r.settings.Timeout,
		Limiter:        r.limiter(userID),
		HTTPClient:     r.settings.HTTPClient,
	})
}

func (r *Resolver) limiter(userID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[userID]
	if !ok {
		limit := rate.Inf
		if r.settings.RatePerSecond > 0 {
			limit = rate.Limit(r.settings.RatePerSecond)
		}
		burst := r.settings.Burst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(limit, burst)
		r.limiters[userID] = l
	}
	return l
}
