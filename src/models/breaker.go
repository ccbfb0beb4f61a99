package models

import "time"

// -----------------------------------------------------------------------------

// BreakerState is the state of a provider circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// -----------------------------------------------------------------------------

// MCircuitBreakerState is a read-only snapshot of one provider breaker.
type MCircuitBreakerState struct {
	Provider        string       `json:"provider"`
	State           BreakerState `json:"state"`
	FailureCount    int          `json:"failure_count"`
	LastFailureTime time.Time    `json:"last_failure_time,omitempty"`
	NextAttemptTime time.Time    `json:"next_attempt_time,omitempty"`
}

// -----------------------------------------------------------------------------

// MBreakerTransition is emitted every time a breaker changes state.
type MBreakerTransition struct {
	Provider  string       `json:"provider"`
	From      BreakerState `json:"from"`
	To        BreakerState `json:"to"`
	Timestamp time.Time    `json:"timestamp"`
}
