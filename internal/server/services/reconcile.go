package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/shopspring/decimal"
)

// DefaultProviderTimeout bounds one provider status call when none is configured.
const DefaultProviderTimeout = 10 * time.Second

// CheckResult is the outcome of one reconciliation check.
type CheckResult struct {
	Payment *models.Payment
	Outcome Outcome

	// Queried is false when the payment was already settled and the
	// provider was not contacted.
	Queried bool
	// Applied is true when this check moved the payment to a terminal status.
	Applied bool

	ProviderState    string
	ProviderAmount   decimal.NullDecimal
	ProviderCurrency string

	// ArchiveErr is set when the observation could not be archived. The
	// payment state above is committed regardless.
	ArchiveErr error
	// GrantErr is set when this check completed the payment but access
	// could not be granted. Check also returns it as its error.
	GrantErr error
}

// AmountMatches reports whether the provider-reported amount, when present,
// agrees with the payment. It is informational only.
func (r *CheckResult) AmountMatches() bool {
	if !r.ProviderAmount.Valid {
		return true
	}
	if r.ProviderCurrency != "" && r.ProviderCurrency != r.Payment.Currency {
		return false
	}
	return r.ProviderAmount.Decimal.Equal(r.Payment.Amount)
}

// Observation is one provider status report as seen by the Reconciler.
type Observation struct {
	PaymentID   string
	UserID      string
	Provider    string
	Correlation CorrelationID
	Status      ProviderStatus
	Applied     bool
	ObservedAt  time.Time
}

// Observer receives every provider observation after it has been applied.
type Observer interface {
	Observe(ctx context.Context, o Observation) error
}

// Reconciler checks a payment against its provider and applies the result.
type Reconciler struct {
	ledger   *PaymentLedger
	resolver GatewayResolver
	timeout  time.Duration
	observer Observer
}

// NewReconciler constructs a Reconciler. A non-positive timeout means
// DefaultProviderTimeout; observer may be nil.
func NewReconciler(ledger *PaymentLedger, resolver GatewayResolver, timeout time.Duration, observer Observer) *Reconciler {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &Reconciler{ledger: ledger, resolver: resolver, timeout: timeout, observer: observer}
}

// Check reconciles one payment.
//
// A settled payment is returned as stored without contacting the provider.
// Otherwise the provider is queried by invoice id, falling back to payment id,
// and the reported state is applied through the ledger. Transport failures
// wrap common.ErrTransport and leave the payment untouched. When the payment
// is completed but the grant fails, the result is returned with the error.
func (r *Reconciler) Check(ctx context.Context, userID, paymentID string) (*CheckResult, error) {
	p, err := r.ledger.Get(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.IsTerminal() {
		return &CheckResult{Payment: p, Outcome: outcomeOf(p.Status), ProviderState: p.ProviderState}, nil
	}

	corr, ok := correlationFor(p)
	if !ok {
		return nil, fmt.Errorf("%w: payment %s has no correlation id", common.ErrReconciliation, p.ID)
	}

	gw, err := r.resolver.Gateway(ctx, userID, p.PaymentProvider)
	if err != nil {
		return nil, fmt.Errorf("error resolving %s gateway: %w", p.PaymentProvider, err)
	}

	st, err := r.status(ctx, gw, corr)
	if err != nil {
		return nil, fmt.Errorf("status check for payment %s (%s): %w", p.ID, corr, err)
	}

	updated, applied, err := r.ledger.ApplyProviderState(ctx, userID, p.ID, st)
	if updated == nil {
		return nil, err
	}

	res := &CheckResult{
		Payment:          updated,
		Outcome:          outcomeOf(updated.Status),
		Queried:          true,
		Applied:          applied,
		ProviderState:    st.State,
		ProviderAmount:   st.Amount,
		ProviderCurrency: st.Currency,
		GrantErr:         err,
	}

	if r.observer != nil {
		res.ArchiveErr = r.observer.Observe(ctx, Observation{
			PaymentID:   updated.ID,
			UserID:      userID,
			Provider:    updated.PaymentProvider,
			Correlation: corr,
			Status:      *st,
			Applied:     applied,
			ObservedAt:  r.ledger.clock.Now(),
		})
	}
	return res, err
}

func (r *Reconciler) status(ctx context.Context, gw Gateway, corr CorrelationID) (*ProviderStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	st, err := gw.Status(ctx, corr)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, common.ErrTransport) {
			return nil, fmt.Errorf("%w: %w", common.ErrTransport, err)
		}
		return nil, err
	}
	if st == nil || st.State == "" {
		return nil, fmt.Errorf("%w: provider response has no state", common.ErrReconciliation)
	}
	return st, nil
}
