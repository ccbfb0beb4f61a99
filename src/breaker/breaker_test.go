package breaker

import (
	"sync"
	"testing"
	"time"

	"resilient-feed/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shortReset = 40 * time.Millisecond

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New("market-prices", 3, time.Minute, nil, nil)

	b.RecordFailure()
	b.RecordFailure()
	assert.True(t, b.CanAttempt())
	assert.Equal(t, models.BreakerClosed, b.Snapshot().State)
	assert.Equal(t, 2, b.Snapshot().FailureCount)

	before := time.Now()
	b.RecordFailure()
	assert.False(t, b.CanAttempt())

	snapshot := b.Snapshot()
	assert.Equal(t, models.BreakerOpen, snapshot.State)
	assert.Equal(t, 3, snapshot.FailureCount)
	assert.False(t, snapshot.LastFailureTime.IsZero())
	assert.WithinDuration(t, before.Add(time.Minute), snapshot.NextAttemptTime, time.Second)
}

func TestBreaker_SuccessResetsCountWhileClosed(t *testing.T) {
	b := New("p", 3, time.Minute, nil, nil)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	assert.True(t, b.CanAttempt())
	assert.Equal(t, 2, b.Snapshot().FailureCount)
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	b := New("p", 1, shortReset, nil, nil)

	b.RecordFailure()
	require.False(t, b.CanAttempt())

	assert.Eventually(t, b.CanAttempt, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.BreakerHalfOpen, b.Snapshot().State)
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New("p", 2, shortReset, nil, nil)

	b.RecordFailure()
	b.RecordFailure()
	require.Eventually(t, b.CanAttempt, time.Second, 5*time.Millisecond)

	b.RecordSuccess()

	snapshot := b.Snapshot()
	assert.Equal(t, models.BreakerClosed, snapshot.State)
	assert.Zero(t, snapshot.FailureCount)
	assert.True(t, snapshot.NextAttemptTime.IsZero())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("p", 1, shortReset, nil, nil)

	b.RecordFailure()
	firstNext := b.Snapshot().NextAttemptTime
	require.Eventually(t, b.CanAttempt, time.Second, 5*time.Millisecond)

	b.RecordFailure()

	snapshot := b.Snapshot()
	assert.Equal(t, models.BreakerOpen, snapshot.State)
	assert.False(t, b.CanAttempt())
	assert.True(t, snapshot.NextAttemptTime.After(firstNext))
}

func TestBreaker_AllowSingleHalfOpenTrial(t *testing.T) {
	b := New("p", 1, shortReset, nil, nil)

	attempt, ok := b.Allow()
	require.True(t, ok)
	attempt.Done(false)

	_, ok = b.Allow()
	assert.False(t, ok, "open breaker rejects attempts")

	require.Eventually(t, b.CanAttempt, time.Second, 5*time.Millisecond)

	trial, ok := b.Allow()
	require.True(t, ok)

	_, ok = b.Allow()
	assert.False(t, ok, "only one trial while half-open")

	trial.Done(true)
	trial.Done(false) // ignored, an attempt settles once

	assert.Equal(t, models.BreakerClosed, b.Snapshot().State)
	assert.Zero(t, b.Snapshot().FailureCount)
}

func TestBreaker_AbandonWhileClosedIsNotCounted(t *testing.T) {
	b := New("p", 2, time.Minute, nil, nil)

	b.RecordFailure()
	for i := 0; i < 5; i++ {
		attempt, ok := b.Allow()
		require.True(t, ok)
		attempt.Abandon()
	}

	snapshot := b.Snapshot()
	assert.Equal(t, models.BreakerClosed, snapshot.State)
	assert.Equal(t, 1, snapshot.FailureCount)

	// the streak survived the abandoned attempts
	b.RecordFailure()
	assert.Equal(t, models.BreakerOpen, b.Snapshot().State)
}

func TestBreaker_AbandonReleasesHalfOpenTrial(t *testing.T) {
	b := New("p", 1, shortReset, nil, nil)
	b.RecordFailure()
	require.Eventually(t, b.CanAttempt, time.Second, 5*time.Millisecond)

	trial, ok := b.Allow()
	require.True(t, ok)
	trial.Abandon()
	trial.Done(false) // ignored

	snapshot := b.Snapshot()
	assert.Equal(t, models.BreakerClosed, snapshot.State)
	assert.Zero(t, snapshot.FailureCount)

	_, ok = b.Allow()
	assert.True(t, ok, "the trial slot is free again")
}

func TestBreaker_NotifiesTransitions(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []models.MBreakerTransition
	)
	var b *Breaker
	b = New("p", 1, shortReset, nil, func(tr models.MBreakerTransition) {
		// reading state from a handler must not deadlock
		_ = b.Snapshot()
		mu.Lock()
		transitions = append(transitions, tr)
		mu.Unlock()
	})

	b.RecordFailure()
	require.Eventually(t, b.CanAttempt, time.Second, 5*time.Millisecond)
	b.RecordSuccess()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 3)
	assert.Equal(t, models.BreakerClosed, transitions[0].From)
	assert.Equal(t, models.BreakerOpen, transitions[0].To)
	assert.Equal(t, models.BreakerHalfOpen, transitions[1].To)
	assert.Equal(t, models.BreakerClosed, transitions[2].To)
	assert.Equal(t, "p", transitions[2].Provider)
}
