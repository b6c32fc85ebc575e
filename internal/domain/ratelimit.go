package domain

import "time"

// RateDecision is the outcome of one rate limiter acquisition attempt.
type RateDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}
