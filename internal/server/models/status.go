// Package models defines server-side data models persisted in the database.
package models

// Status is the canonical, provider-agnostic payment state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}

// Valid reports whether s is one of the canonical statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Payment methods.
const (
	MethodMpesa = "mpesa"
	MethodCard  = "card"
	MethodBank  = "bank"
)

// Payment providers.
const (
	ProviderIntaSend = "intasend"
	ProviderKopoKopo = "kopokopo"
)

// Credential environments.
const (
	EnvironmentSandbox = "sandbox"
	EnvironmentLive    = "live"
)

var (
	paymentMethods = map[string]string{MethodMpesa: "M-Pesa", MethodCard: "Card", MethodBank: "Bank Transfer"}
	providers      = map[string]string{ProviderIntaSend: "IntaSend", ProviderKopoKopo: "KopoKopo"}
)

// ValidMethod reports whether m is a supported payment method.
func ValidMethod(m string) bool {
	_, ok := paymentMethods[m]
	return ok
}

// ValidProvider reports whether p is a supported payment provider.
func ValidProvider(p string) bool {
	_, ok := providers[p]
	return ok
}

// ValidEnvironment reports whether e is sandbox or live.
func ValidEnvironment(e string) bool { return e == EnvironmentSandbox || e == EnvironmentLive }

// ProviderDisplayName returns the human-readable provider name, or p itself.
func ProviderDisplayName(p string) string {
	if name, ok := providers[p]; ok {
		return name
	}
	return p
}
