// Package common defines shared constants and sentinel errors used across
// hotspotpay components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Vault errors.
	ErrConfiguration = errors.New("configuration error")
	ErrDecryption    = errors.New("decryption error")
	ErrNoValue       = errors.New("no value")

	// Input and uniqueness errors.
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// Payment lifecycle errors.
	ErrInvalidTransition = errors.New("invalid transition")
	ErrReconciliation    = errors.New("reconciliation error")

	// Provider errors. ErrTransport is retryable, ErrProviderRejected is final.
	ErrTransport        = errors.New("provider transport error")
	ErrProviderRejected = errors.New("provider rejected request")
)

// IsRetryable reports whether err is a provider communication failure that
// a caller may retry later without any state having been changed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport)
}
