// Package intasend is the IntaSend implementation of services.Gateway.
// It speaks the REST API directly and converts every response into the
// services types at this boundary.
package intasend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/dmitrijs2005/hotspotpay/internal/server/services"
	"golang.org/x/time/rate"
)

const (
	stkPushPath  = "/api/v1/payment/mpesa-stk-push/"
	checkoutPath = "/api/v1/checkout/"
	statusPath   = "/api/v1/payment/status/"

	publicKeyHeader = "X-IntaSend-Public-API-Key"
	maxBodySize     = 1 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL        string
	PublishableKey string
	SecretKey      string
	CallbackURL    string
	Timeout        time.Duration
	Limiter        *rate.Limiter
	HTTPClient     *http.Client
}

// Client calls the IntaSend API with one operator's credentials.
type Client struct {
	baseURL        string
	publishableKey string
	secretKey      string
	callbackURL    string
	limiter        *rate.Limiter
	http           *http.Client
}

var _ services.Gateway = (*Client)(nil)

func NewClient(opts Options) (*Client, error) {
	if opts.PublishableKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("%w: intasend keys are not set", common.ErrConfiguration)
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid intasend base url %q", common.ErrConfiguration, opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		publishableKey: opts.PublishableKey,
		secretKey:      opts.SecretKey,
		callbackURL:    opts.CallbackURL,
		limiter:        limiter,
		http:           httpClient,
	}, nil
}

// Initiate sends an M-Pesa STK push for mpesa payments and creates a hosted
// checkout link for card and bank payments.
func (c *Client) Initiate(ctx context.Context, p *models.Payment) (*services.InitiateResult, error) {
	phone := FormatPhone(p.PhoneNumber)
	amount := p.Amount.StringFixed(2)

	if p.PaymentMethod == models.MethodMpesa {
		body, err := c.do(ctx, http.MethodPost, stkPushPath, stkPushRequest{
			Amount:      amount,
			Currency:    p.Currency,
			PhoneNumber: phone,
			APIRef:      p.ID,
			Narrative:   "WiFi package " + p.PackageID,
		})
		if err != nil {
			return nil, err
		}
		return parseSTKPush(body)
	}

	method, ok := checkoutMethods[p.PaymentMethod]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported payment method %q", common.ErrValidation, p.PaymentMethod)
	}
	body, err := c.do(ctx, http.MethodPost, checkoutPath, checkoutRequest{
		PublicKey:   c.publishableKey,
		Amount:      amount,
		Currency:    p.Currency,
		PhoneNumber: phone,
		APIRef:      p.ID,
		Method:      method,
		FirstName:   "WiFi",
		LastName:    "User",
		Email:       "wifi-" + phone + "@hotspot.invalid",
		RedirectURL: c.callbackURL,
	})
	if err != nil {
		return nil, err
	}
	return parseCheckout(body)
}

// Status queries by invoice id when available and by payment id otherwise.
func (c *Client) Status(ctx context.Context, id services.CorrelationID) (*services.ProviderStatus, error) {
	var (
		body []byte
		err  error
	)
	switch id.Kind {
	case services.CorrelationInvoice:
		body, err = c.do(ctx, http.MethodPost, statusPath, statusRequest{InvoiceID: id.Value})
	case services.CorrelationPayment:
		body, err = c.do(ctx, http.MethodGet, statusPath+url.PathEscape(id.Value)+"/", nil)
	default:
		return nil, fmt.Errorf("%w: unknown correlation kind %q", common.ErrReconciliation, id.Kind)
	}
	if err != nil {
		return nil, err
	}
	return parseStatus(body)
}

// do performs one request. Network failures, timeouts, throttling and 5xx
// answers wrap common.ErrTransport; other 4xx answers wrap
// common.ErrProviderRejected.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", common.ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set(publicKeyHeader, c.publishableKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", common.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", common.ErrTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: IntaSend API error (%d): %s", common.ErrTransport, resp.StatusCode, errorMessage(body))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: IntaSend API error (%d): %s", common.ErrProviderRejected, resp.StatusCode, errorMessage(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: unexpected status %d", common.ErrTransport, resp.StatusCode)
	}
	return body, nil
}
