package breaker

import (
	"sync"
	"time"

	"resilient-feed/src/logger"
	"resilient-feed/src/models"

	"github.com/sony/gobreaker"
)

// -----------------------------------------------------------------------------

// Breaker gates attempts against one provider.
//
// State transitions are delegated to a gobreaker two-step breaker with a
// consecutive failure trip rule and a single half-open trial. Breaker keeps the
// counters that gobreaker resets on every generation change.
type Breaker struct {
	provider     string
	threshold    int
	resetTimeout time.Duration
	logger       *logger.Logger
	notify       func(models.MBreakerTransition)
	now          func() time.Time

	cb *gobreaker.TwoStepCircuitBreaker

	mu              sync.Mutex
	failureCount    int
	lastFailureTime time.Time
	nextAttemptTime time.Time
	pending         []models.MBreakerTransition
}

// -----------------------------------------------------------------------------

// New creates a closed breaker. notify may be nil.
func New(provider string, threshold int, resetTimeout time.Duration, log *logger.Logger, notify func(models.MBreakerTransition)) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	b := &Breaker{
		provider:     provider,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		logger:       log,
		notify:       notify,
		now:          time.Now,
	}

	b.cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,
		Interval:    0, // counts only reset on success or state change
		Timeout:     resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: b.onStateChange,
	})

	return b
}

// -----------------------------------------------------------------------------

// Provider returns the provider name
func (b *Breaker) Provider() string {
	return b.provider
}

// -----------------------------------------------------------------------------

// CanAttempt reports whether the provider may be called. Evaluating it moves
// an open breaker whose reset time has passed to half-open.
func (b *Breaker) CanAttempt() bool {
	state := b.cb.State()
	b.flush()
	return state != gobreaker.StateOpen
}

// -----------------------------------------------------------------------------

// Allow reserves an attempt. While half-open only one attempt is admitted at
// a time. The returned Attempt must be settled exactly once.
func (b *Breaker) Allow() (*Attempt, bool) {
	cbDone, err := b.cb.Allow()
	b.flush()
	if err != nil {
		return nil, false
	}

	return &Attempt{
		breaker:  b,
		cbDone:   cbDone,
		halfOpen: b.cb.State() == gobreaker.StateHalfOpen,
	}, true
}

// -----------------------------------------------------------------------------

// Attempt is one admitted call against the provider.
type Attempt struct {
	breaker  *Breaker
	cbDone   func(bool)
	halfOpen bool
	once     sync.Once
}

// Done records the outcome. Calls after the first are ignored.
func (a *Attempt) Done(success bool) {
	a.once.Do(func() { a.breaker.record(a.cbDone, success) })
}

// Abandon settles an attempt whose caller went away before the provider
// answered. It says nothing about the provider: a closed breaker keeps its
// failure streak untouched. A half-open trial cannot be handed back to
// gobreaker, so it is released as a success and the breaker closes.
func (a *Attempt) Abandon() {
	a.once.Do(func() {
		b := a.breaker
		if !a.halfOpen {
			b.logger.Debug("%s : attempt abandoned by caller, not counted", b.provider)
			return
		}
		b.logger.Info("%s : half-open trial abandoned by caller, releasing it", b.provider)
		b.record(a.cbDone, true)
	})
}

// -----------------------------------------------------------------------------

// RecordSuccess resets the failure count and closes a half-open breaker.
func (b *Breaker) RecordSuccess() {
	b.recordDirect(true)
}

// -----------------------------------------------------------------------------

// RecordFailure counts a failure. It opens a closed breaker once the threshold
// is reached and reopens a half-open one immediately.
func (b *Breaker) RecordFailure() {
	b.recordDirect(false)
}

// -----------------------------------------------------------------------------

// Snapshot returns the current state.
func (b *Breaker) Snapshot() models.MCircuitBreakerState {
	state := b.cb.State()
	b.flush()

	b.mu.Lock()
	defer b.mu.Unlock()

	return models.MCircuitBreakerState{
		Provider:        b.provider,
		State:           convertState(state),
		FailureCount:    b.failureCount,
		LastFailureTime: b.lastFailureTime,
		NextAttemptTime: b.nextAttemptTime,
	}
}

// -----------------------------------------------------------------------------

func (b *Breaker) recordDirect(success bool) {
	cbDone, err := b.cb.Allow()
	b.flush()
	if err != nil {
		// open: nothing to feed into the state machine
		b.mu.Lock()
		if !success {
			b.failureCount++
			b.lastFailureTime = b.now()
		}
		b.mu.Unlock()
		return
	}
	b.record(cbDone, success)
}

// -----------------------------------------------------------------------------

func (b *Breaker) record(cbDone func(bool), success bool) {
	b.mu.Lock()
	if success {
		b.failureCount = 0
	} else {
		b.failureCount++
		b.lastFailureTime = b.now()
	}
	b.mu.Unlock()

	cbDone(success)
	b.flush()
}

// -----------------------------------------------------------------------------

// onStateChange runs while gobreaker holds its own lock; it must not call
// back into b.cb. Transitions are queued and delivered by flush.
func (b *Breaker) onStateChange(_ string, from gobreaker.State, to gobreaker.State) {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	switch to {
	case gobreaker.StateOpen:
		b.nextAttemptTime = now.Add(b.resetTimeout)
	case gobreaker.StateClosed:
		b.nextAttemptTime = time.Time{}
	}

	b.pending = append(b.pending, models.MBreakerTransition{
		Provider:  b.provider,
		From:      convertState(from),
		To:        convertState(to),
		Timestamp: now,
	})
}

// -----------------------------------------------------------------------------

func (b *Breaker) flush() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, transition := range pending {
		switch transition.To {
		case models.BreakerOpen:
			b.logger.Warning("%s : circuit breaker opened (%s -> %s)", b.provider, transition.From, transition.To)
		default:
			b.logger.Info("%s : circuit breaker %s -> %s", b.provider, transition.From, transition.To)
		}
		if b.notify != nil {
			b.notify(transition)
		}
	}
}

// -----------------------------------------------------------------------------

func convertState(state gobreaker.State) models.BreakerState {
	switch state {
	case gobreaker.StateOpen:
		return models.BreakerOpen
	case gobreaker.StateHalfOpen:
		return models.BreakerHalfOpen
	default:
		return models.BreakerClosed
	}
}
