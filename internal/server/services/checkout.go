package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
)

// Checkout creates a payment and asks its provider to collect it.
type Checkout struct {
	ledger   *PaymentLedger
	resolver GatewayResolver
	timeout  time.Duration
}

func NewCheckout(ledger *PaymentLedger, resolver GatewayResolver, timeout time.Duration) *Checkout {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &Checkout{ledger: ledger, resolver: resolver, timeout: timeout}
}

// Start creates a pending payment and initiates it with the provider.
//
// On success the payment carries the provider correlation ids and is
// processing. If the provider refuses the request, or the user has no
// usable gateway credential, the payment is marked failed and the error is
// returned alongside it. Any other failure, such as a provider timeout or a
// database error while loading the credential, leaves the payment pending
// with its retry counter bumped so Retry can initiate it again.
func (c *Checkout) Start(ctx context.Context, userID string, in NewPayment) (*models.Payment, *InitiateResult, error) {
	p, err := c.ledger.Create(ctx, userID, in)
	if err != nil {
		return nil, nil, err
	}
	return c.initiate(ctx, p)
}

// Retry re-initiates a pending payment that never reached the provider.
func (c *Checkout) Retry(ctx context.Context, userID, id string) (*models.Payment, *InitiateResult, error) {
	p, err := c.ledger.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	if p.Status != models.StatusPending {
		return p, nil, fmt.Errorf("%w: payment %s is %s", common.ErrValidation, p.ID, p.Status)
	}
	if _, ok := correlationFor(p); ok {
		return p, nil, fmt.Errorf("%w: payment %s was already initiated", common.ErrValidation, p.ID)
	}
	return c.initiate(ctx, p)
}

func (c *Checkout) initiate(ctx context.Context, p *models.Payment) (*models.Payment, *InitiateResult, error) {
	gw, err := c.resolver.Gateway(ctx, p.UserID, p.PaymentProvider)
	if err != nil {
		cause := fmt.Errorf("error resolving %s gateway: %w", p.PaymentProvider, err)
		if gatewayUnusable(err) {
			return c.fail(ctx, p, cause)
		}
		return c.retryLater(ctx, p, cause)
	}

	ictx, cancel := context.WithTimeout(ctx, c.timeout)
	res, err := gw.Initiate(ictx, p)
	cancel()
	if err != nil {
		cause := fmt.Errorf("initiate payment %s: %w", p.ID, err)
		if common.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded) {
			return c.retryLater(ctx, p, cause)
		}
		return c.fail(ctx, p, cause)
	}

	updated, err := c.ledger.AttachProvider(ctx, p.UserID, p.ID, res)
	if err != nil {
		return p, res, err
	}
	return updated, res, nil
}

// gatewayUnusable reports resolver errors that no retry can fix: a missing
// or misconfigured credential, or one that no longer decrypts.
func gatewayUnusable(err error) bool {
	return errors.Is(err, common.ErrorNotFound) ||
		errors.Is(err, common.ErrConfiguration) ||
		errors.Is(err, common.ErrDecryption)
}

// retryLater keeps p pending and bumps its retry counter.
func (c *Checkout) retryLater(ctx context.Context, p *models.Payment, cause error) (*models.Payment, *InitiateResult, error) {
	updated, err := c.ledger.RecordRetry(ctx, p.UserID, p.ID)
	if err != nil {
		return p, nil, errors.Join(cause, err)
	}
	return updated, nil, cause
}

func (c *Checkout) fail(ctx context.Context, p *models.Payment, cause error) (*models.Payment, *InitiateResult, error) {
	updated, err := c.ledger.Fail(ctx, p.UserID, p.ID, cause.Error())
	if err != nil {
		return p, nil, errors.Join(cause, err)
	}
	return updated, nil, cause
}
