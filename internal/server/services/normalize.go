package services

import (
	"strings"

	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
)

// Outcome is the canonical meaning of a provider-reported state.
type Outcome int

const (
	OutcomeInFlight Outcome = iota
	OutcomeCompleted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return "in-flight"
	}
}

var providerStates = map[string]Outcome{
	"COMPLETE":   OutcomeCompleted,
	"COMPLETED":  OutcomeCompleted,
	"SUCCESS":    OutcomeCompleted,
	"SUCCESSFUL": OutcomeCompleted,
	"FAILED":     OutcomeFailed,
	"FAILURE":    OutcomeFailed,
	"CANCELLED":  OutcomeFailed,
	"CANCELED":   OutcomeFailed,
	"DECLINED":   OutcomeFailed,
	"ERROR":      OutcomeFailed,
}

// NormalizeState maps a raw provider state to an Outcome. Matching ignores
// case and surrounding whitespace; unknown states are in flight.
func NormalizeState(raw string) Outcome {
	if o, ok := providerStates[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return o
	}
	return OutcomeInFlight
}

func outcomeOf(s models.Status) Outcome {
	switch s {
	case models.StatusCompleted:
		return OutcomeCompleted
	case models.StatusFailed, models.StatusCancelled:
		return OutcomeFailed
	default:
		return OutcomeInFlight
	}
}
