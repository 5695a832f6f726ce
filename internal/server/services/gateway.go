package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/shopspring/decimal"
)

// CorrelationKind names which provider identifier a CorrelationID carries.
type CorrelationKind string

const (
	CorrelationInvoice CorrelationKind = "invoice"
	CorrelationPayment CorrelationKind = "payment"
)

// CorrelationID is a provider-assigned identifier used to look up the status
// of one transaction.
type CorrelationID struct {
	Kind  CorrelationKind
	Value string
}

func (c CorrelationID) String() string {
	return string(c.Kind) + ":" + c.Value
}

// correlationFor prefers the invoice id and falls back to the payment id.
func correlationFor(p *models.Payment) (CorrelationID, bool) {
	switch {
	case p.ProviderInvoiceID != "":
		return CorrelationID{Kind: CorrelationInvoice, Value: p.ProviderInvoiceID}, true
	case p.ProviderPaymentID != "":
		return CorrelationID{Kind: CorrelationPayment, Value: p.ProviderPaymentID}, true
	default:
		return CorrelationID{}, false
	}
}

// InitiateResult is what a provider returns when a payment request is accepted.
type InitiateResult struct {
	InvoiceID  string
	PaymentID  string
	State      string
	PaymentURL string
}

// ProviderStatus is the single normalized shape of a provider status report.
// Amount and Currency are informational; they never overwrite the payment.
type ProviderStatus struct {
	State         string
	InvoiceID     string
	PaymentID     string
	Amount        decimal.NullDecimal
	Currency      string
	FailureReason string
}

// Gateway talks to one payment provider on behalf of one operator.
//
// Implementations classify errors: communication failures wrap
// common.ErrTransport, explicit refusals wrap common.ErrProviderRejected.
type Gateway interface {
	Initiate(ctx context.Context, p *models.Payment) (*InitiateResult, error)
	Status(ctx context.Context, id CorrelationID) (*ProviderStatus, error)
}

// GatewayResolver returns the Gateway configured for a user and provider.
type GatewayResolver interface {
	Gateway(ctx context.Context, userID, provider string) (Gateway, error)
}

// AccessGranter provisions router access for a completed payment.
//
// The ledger calls Grant once, after the completion is committed. A Grant
// error does not roll the completion back and is not retried
// automatically: it is returned to the caller (and reported as
// CheckResult.GrantErr), and PaymentLedger.Regrant provisions again.
type AccessGranter interface {
	Grant(ctx context.Context, p *models.Payment) error
}

// Clock is injected wherever timestamps are stamped on a payment.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
