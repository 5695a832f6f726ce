package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/dmitrijs2005/hotspotpay/internal/server/repositories/payments"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	minPhoneDigits = 9
	maxPhoneDigits = 12
)

// NewPayment is the input to PaymentLedger.Create. Empty Currency, Method
// and Provider take the defaults (KES, mpesa, intasend).
type NewPayment struct {
	RouterID    string
	PackageID   string
	PhoneNumber string
	Amount      decimal.Decimal
	Currency    string
	Method      string
	Provider    string
	MACAddress  string
	IPAddress   string
}

// PaymentLedger is the only mutation surface for payment status.
//
// Every change runs inside payments.Store.Mutate, so the terminal-state check
// and the write happen under the same row lock. The AccessGranter is invoked
// once, by the call whose transaction moved the payment to completed.
type PaymentLedger struct {
	store   payments.Store
	catalog Catalog
	clock   Clock
	granter AccessGranter
}

// NewPaymentLedger constructs a PaymentLedger. A nil clock means SystemClock;
// a nil granter disables the completion hook.
func NewPaymentLedger(store payments.Store, catalog Catalog, clock Clock, granter AccessGranter) *PaymentLedger {
	if clock == nil {
		clock = SystemClock{}
	}
	return &PaymentLedger{store: store, catalog: catalog, clock: clock, granter: granter}
}

// Create validates in against the catalog and persists a pending payment.
// Every violated precondition yields common.ErrValidation and nothing is
// written.
func (l *PaymentLedger) Create(ctx context.Context, userID string, in NewPayment) (*models.Payment, error) {
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = common.DefaultCurrency
	}
	method := in.Method
	if method == "" {
		method = models.MethodMpesa
	}
	provider := in.Provider
	if provider == "" {
		provider = models.ProviderIntaSend
	}

	if !models.ValidMethod(method) {
		return nil, fmt.Errorf("%w: unsupported payment method %q", common.ErrValidation, method)
	}
	if !models.ValidProvider(provider) {
		return nil, fmt.Errorf("%w: unsupported payment provider %q", common.ErrValidation, provider)
	}

	phone := common.DigitsOnly(in.PhoneNumber)
	if len(phone) < minPhoneDigits || len(phone) > maxPhoneDigits {
		return nil, fmt.Errorf("%w: phone number must have %d-%d digits", common.ErrValidation, minPhoneDigits, maxPhoneDigits)
	}

	router, err := l.catalog.Router(ctx, userID, in.RouterID)
	if err != nil {
		return nil, catalogError("router", in.RouterID, err)
	}
	pkg, err := l.catalog.Package(ctx, userID, in.PackageID)
	if err != nil {
		return nil, catalogError("package", in.PackageID, err)
	}
	if pkg.RouterID != router.ID {
		return nil, fmt.Errorf("%w: package %s does not belong to router %s", common.ErrValidation, pkg.ID, router.ID)
	}
	if !pkg.IsActive {
		return nil, fmt.Errorf("%w: package %s is not active", common.ErrValidation, pkg.ID)
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return nil, fmt.Errorf("%w: amount %s has more than 2 decimal places", common.ErrValidation, in.Amount)
	}
	if !in.Amount.Equal(pkg.Price) || !strings.EqualFold(currency, pkg.Currency) {
		return nil, fmt.Errorf("%w: amount %s %s does not match package price %s %s",
			common.ErrValidation, in.Amount.StringFixed(2), currency, pkg.Price.StringFixed(2), pkg.Currency)
	}

	now := l.clock.Now()
	p := &models.Payment{
		ID:                   uuid.NewString(),
		UserID:               userID,
		RouterID:             router.ID,
		PackageID:            pkg.ID,
		PackageDurationHours: pkg.DurationHours,
		PhoneNumber:          phone,
		Amount:               pkg.Price,
		Currency:             currency,
		PaymentMethod:        method,
		PaymentProvider:      provider,
		Status:               models.StatusPending,
		MACAddress:           in.MACAddress,
		IPAddress:            in.IPAddress,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := l.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("error creating payment: %w", err)
	}
	return p, nil
}

// Get returns the payment if it belongs to userID.
func (l *PaymentLedger) Get(ctx context.Context, userID, id string) (*models.Payment, error) {
	p, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return p, nil
}

func (l *PaymentLedger) ListByStatus(ctx context.Context, userID string, status models.Status) ([]*models.Payment, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", common.ErrValidation, status)
	}
	return l.store.ListByStatus(ctx, userID, status)
}

// Transition moves the payment to target following the lifecycle rules:
// forward moves apply, repeats and backward moves are absorbed, and moving
// a terminal payment to a different terminal status fails with
// common.ErrInvalidTransition.
func (l *PaymentLedger) Transition(ctx context.Context, userID, id string, target models.Status) (*models.Payment, error) {
	return l.mutate(ctx, userID, id, func(p *models.Payment, now time.Time) (bool, error) {
		return applyStatus(p, target, now)
	})
}

// Complete marks the payment completed, stamping completed_at and the package
// expiry. Completing an already completed payment changes nothing.
func (l *PaymentLedger) Complete(ctx context.Context, userID, id string) (*models.Payment, error) {
	return l.Transition(ctx, userID, id, models.StatusCompleted)
}

// Regrant provisions access again for a completed payment, after an earlier
// Grant failed. Payments in any other status fail with common.ErrValidation.
func (l *PaymentLedger) Regrant(ctx context.Context, userID, id string) (*models.Payment, error) {
	p, err := l.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if p.Status != models.StatusCompleted {
		return p, fmt.Errorf("%w: payment %s is %s, not completed", common.ErrValidation, p.ID, p.Status)
	}
	if l.granter == nil {
		return p, nil
	}
	if err := l.granter.Grant(ctx, p); err != nil {
		return p, fmt.Errorf("grant access for payment %s: %w", p.ID, err)
	}
	return p, nil
}

// Fail marks the payment failed with reason. A terminal payment is left as is.
func (l *PaymentLedger) Fail(ctx context.Context, userID, id, reason string) (*models.Payment, error) {
	return l.mutate(ctx, userID, id, func(p *models.Payment, now time.Time) (bool, error) {
		if p.IsTerminal() {
			return false, nil
		}
		p.ErrorMessage = reason
		return applyStatus(p, models.StatusFailed, now)
	})
}

// Cancel marks a pending or processing payment cancelled.
func (l *PaymentLedger) Cancel(ctx context.Context, userID, id string) (*models.Payment, error) {
	return l.Transition(ctx, userID, id, models.StatusCancelled)
}

// RecordRetry increments the retry counter regardless of status.
func (l *PaymentLedger) RecordRetry(ctx context.Context, userID, id string) (*models.Payment, error) {
	return l.mutate(ctx, userID, id, func(p *models.Payment, now time.Time) (bool, error) {
		p.RetryCount++
		p.UpdatedAt = now
		return true, nil
	})
}

// AttachProvider stores the correlation ids and raw state returned by a
// successful initiation and moves a pending payment to processing.
func (l *PaymentLedger) AttachProvider(ctx context.Context, userID, id string, res *InitiateResult) (*models.Payment, error) {
	return l.mutate(ctx, userID, id, func(p *models.Payment, now time.Time) (bool, error) {
		if p.IsTerminal() {
			return false, nil
		}
		if res.InvoiceID != "" {
			p.ProviderInvoiceID = res.InvoiceID
		}
		if res.PaymentID != "" {
			p.ProviderPaymentID = res.PaymentID
		}
		p.ProviderState = res.State
		p.UpdatedAt = now
		if _, err := applyStatus(p, models.StatusProcessing, now); err != nil {
			return false, err
		}
		return true, nil
	})
}

// ApplyProviderState records st on the payment and applies its normalized
// outcome. The terminal check runs under the row lock, so of several
// concurrent callers only one can settle the payment; applied reports
// whether this call did.
func (l *PaymentLedger) ApplyProviderState(ctx context.Context, userID, id string, st *ProviderStatus) (p *models.Payment, applied bool, err error) {
	p, err = l.mutate(ctx, userID, id, func(p *models.Payment, now time.Time) (bool, error) {
		applied = false
		if p.IsTerminal() {
			return false, nil
		}

		changed := false
		if p.ProviderState != st.State {
			p.ProviderState = st.State
			changed = true
		}
		if p.ProviderInvoiceID == "" && st.InvoiceID != "" {
			p.ProviderInvoiceID = st.InvoiceID
			changed = true
		}
		if p.ProviderPaymentID == "" && st.PaymentID != "" {
			p.ProviderPaymentID = st.PaymentID
			changed = true
		}

		switch NormalizeState(st.State) {
		case OutcomeCompleted:
			if _, err := applyStatus(p, models.StatusCompleted, now); err != nil {
				return false, err
			}
			applied = true
		case OutcomeFailed:
			p.ErrorMessage = failureMessage(p, st)
			if _, err := applyStatus(p, models.StatusFailed, now); err != nil {
				return false, err
			}
			applied = true
		}

		if changed || applied {
			p.UpdatedAt = now
		}
		return changed || applied, nil
	})
	if p == nil {
		return nil, false, err
	}
	// a non-nil err here comes from the access granter; the state is committed
	return p, applied, err
}

// mutate runs fn under the row lock after checking ownership, then invokes
// the access granter if this call completed the payment.
func (l *PaymentLedger) mutate(ctx context.Context, userID, id string, fn func(p *models.Payment, now time.Time) (bool, error)) (*models.Payment, error) {
	var completedNow bool

	p, err := l.store.Mutate(ctx, id, func(p *models.Payment) (bool, error) {
		completedNow = false
		if p.UserID != userID {
			return false, common.ErrorNotFound
		}
		before := p.Status
		changed, err := fn(p, l.clock.Now())
		if err != nil {
			return false, err
		}
		completedNow = changed && before != models.StatusCompleted && p.Status == models.StatusCompleted
		return changed, nil
	})
	if err != nil {
		return nil, err
	}

	if completedNow && l.granter != nil {
		if err := l.granter.Grant(ctx, p); err != nil {
			return p, fmt.Errorf("grant access for payment %s: %w", p.ID, err)
		}
	}
	return p, nil
}

// applyStatus is the lifecycle state machine.
func applyStatus(p *models.Payment, target models.Status, now time.Time) (bool, error) {
	if !target.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", common.ErrValidation, target)
	}

	current := p.Status
	switch {
	case current == target:
		return false, nil
	case current.Terminal() && target.Terminal():
		return false, fmt.Errorf("%w: payment %s is %s, cannot become %s", common.ErrInvalidTransition, p.ID, current, target)
	case current.Terminal():
		return false, nil
	case target == models.StatusPending:
		return false, nil
	}

	p.Status = target
	p.UpdatedAt = now
	if target == models.StatusCompleted {
		completed := now
		p.CompletedAt = &completed
		if p.PackageExpiryTime == nil {
			expiry := now.Add(time.Duration(p.PackageDurationHours) * time.Hour)
			p.PackageExpiryTime = &expiry
		}
	}
	return true, nil
}

func failureMessage(p *models.Payment, st *ProviderStatus) string {
	msg := fmt.Sprintf("payment %s on %s", strings.ToLower(strings.TrimSpace(st.State)), models.ProviderDisplayName(p.PaymentProvider))
	if reason := strings.TrimSpace(st.FailureReason); reason != "" {
		msg += ": " + reason
	}
	return msg
}

func catalogError(kind, id string, err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("%w: %s %s not found", common.ErrValidation, kind, id)
	}
	return fmt.Errorf("error loading %s %s: %w", kind, id, err)
}
