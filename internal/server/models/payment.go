package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is one customer purchase of a package on a router.
//
// ID is a random UUID so that ids leak nothing about volume or order.
// Amount and Currency are fixed at creation against the catalog price and
// are never overwritten by provider reports.
type Payment struct {
	ID       string
	UserID   string
	RouterID string
	// PackageID references the purchased package; PackageDurationHours is
	// the package duration captured at creation for expiry computation.
	PackageID            string
	PackageDurationHours int

	PhoneNumber     string
	Amount          decimal.Decimal
	Currency        string
	PaymentMethod   string
	PaymentProvider string
	Status          Status

	ProviderInvoiceID string
	ProviderPaymentID string
	ProviderState     string

	MACAddress string
	IPAddress  string

	PackageExpiryTime *time.Time

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time

	ErrorMessage string
	RetryCount   int
}

func (p *Payment) IsSuccessful() bool { return p.Status == StatusCompleted }

// IsFailed reports failed or cancelled.
func (p *Payment) IsFailed() bool { return p.Status == StatusFailed || p.Status == StatusCancelled }

// IsPending reports pending or processing.
func (p *Payment) IsPending() bool { return p.Status == StatusPending || p.Status == StatusProcessing }

func (p *Payment) IsTerminal() bool { return p.Status.Terminal() }

// IsExpired reports whether now is strictly after the package expiry.
// A payment with no expiry is never expired.
func (p *Payment) IsExpired(now time.Time) bool {
	if p.PackageExpiryTime == nil {
		return false
	}
	return now.After(*p.PackageExpiryTime)
}

// IsActive reports whether the purchased access is currently valid.
func (p *Payment) IsActive(now time.Time) bool {
	return p.IsSuccessful() && !p.IsExpired(now)
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	if p.PackageExpiryTime != nil {
		t := *p.PackageExpiryTime
		c.PackageExpiryTime = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
