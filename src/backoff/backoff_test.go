package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCapped_ReconnectSequence(t *testing.T) {
	base := time.Second
	limit := 30 * time.Second

	var got []time.Duration
	for attempt := 1; attempt <= 7; attempt++ {
		got = append(got, Capped(base, attempt-1, limit))
	}

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}, got)

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i], got[i-1])
	}
}

func TestExponential(t *testing.T) {
	tests := []struct {
		name     string
		base     time.Duration
		exponent int
		want     time.Duration
	}{
		{"zero exponent", 5 * time.Second, 0, 5 * time.Second},
		{"negative exponent", 5 * time.Second, -1, 5 * time.Second},
		{"doubling", 5 * time.Second, 2, 20 * time.Second},
		{"zero base", 0, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Exponential(tt.base, tt.exponent))
		})
	}

	assert.Greater(t, Exponential(time.Hour, 1000), time.Duration(0))
}

func TestCapped_NoLimit(t *testing.T) {
	assert.Equal(t, 8*time.Second, Capped(time.Second, 3, 0))
}

func TestSleepWithContext(t *testing.T) {
	assert.NoError(t, SleepWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := SleepWithContext(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
