package cache

import (
	"testing"
	"time"

	"resilient-feed/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced manually by the tests
type fakeClock struct {
	current time.Time
}

func (f *fakeClock) Now() time.Time          { return f.current }
func (f *fakeClock) Advance(d time.Duration) { f.current = f.current.Add(d) }

func newTestCache(maxEntries int) (*MemoryCache, *fakeClock) {
	clock := &fakeClock{current: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(&models.MCacheConfig{MaxEntries: maxEntries}, nil)
	c.now = clock.Now
	return c, clock
}

func TestMemoryCache_TTLBoundary(t *testing.T) {
	c, clock := newTestCache(0)

	c.Set("BTC-price", []byte("67250"), 30)

	clock.Advance(29 * time.Second)
	payload, ok := c.Get("BTC-price")
	require.True(t, ok)
	assert.Equal(t, "67250", string(payload))

	clock.Advance(2 * time.Second)
	_, ok = c.Get("BTC-price")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry is removed on read")
}

func TestMemoryCache_ExactTTLIsMiss(t *testing.T) {
	c, clock := newTestCache(0)

	c.Set("k", []byte("v"), 10)
	clock.Advance(10 * time.Second)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestMemoryCache_ZeroTTL(t *testing.T) {
	c, _ := newTestCache(0)

	c.Set("k", []byte("v"), 0)
	_, ok := c.Get("k")
	assert.False(t, ok)

	stale, ok := c.GetStale("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(stale))
}

func TestMemoryCache_SetOverwrites(t *testing.T) {
	c, clock := newTestCache(0)

	c.Set("k", []byte("old"), 5)
	clock.Advance(6 * time.Second)
	_, ok := c.Get("k")
	require.False(t, ok)

	c.Set("k", []byte("new"), 5)
	payload, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", string(payload))

	stale, ok := c.GetStale("k")
	require.True(t, ok)
	assert.Equal(t, "new", string(stale))
	assert.Equal(t, 0, c.Stats().Stale)
}

func TestMemoryCache_GetStaleAfterExpiry(t *testing.T) {
	c, clock := newTestCache(0)

	c.Set("k", []byte("last-good"), 1)
	clock.Advance(time.Hour)

	_, ok := c.Get("k")
	require.False(t, ok)

	payload, ok := c.GetStale("k")
	require.True(t, ok)
	assert.Equal(t, "last-good", string(payload))

	_, ok = c.GetStale("missing")
	assert.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyInserted(t *testing.T) {
	c, _ := newTestCache(2)

	c.Set("a", []byte("1"), 60)
	c.Set("b", []byte("2"), 60)

	// reading a does not refresh its position
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", []byte("3"), 60)

	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(1), stats.Evictions)

	stale, ok := c.GetStale("a")
	require.True(t, ok)
	assert.Equal(t, "1", string(stale))
}

func TestMemoryCache_StaleShelfIsBounded(t *testing.T) {
	c, clock := newTestCache(1)

	c.Set("a", []byte("1"), 1)
	c.Set("b", []byte("2"), 1)
	c.Set("c", []byte("3"), 1)
	clock.Advance(2 * time.Second)

	_, ok := c.GetStale("a")
	assert.False(t, ok)
	_, ok = c.GetStale("b")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Stats().Stale)
}

func TestMemoryCache_PayloadIsCopied(t *testing.T) {
	c, _ := newTestCache(0)

	original := []byte("abc")
	c.Set("k", original, 60)
	original[0] = 'z'

	payload, _ := c.Get("k")
	assert.Equal(t, "abc", string(payload))

	payload[0] = 'y'
	again, _ := c.Get("k")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryCache_Stats(t *testing.T) {
	c, _ := newTestCache(0)

	c.Get("missing")
	c.Set("k", []byte("v"), 60)
	c.Get("k")
	c.Get("k")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("market-prices", "/simple/price", map[string]string{"ids": "bitcoin", "vs": "usd"})
	b := Fingerprint("market-prices", "/simple/price", map[string]string{"vs": "usd", "ids": "bitcoin"})
	assert.Equal(t, a, b)
	assert.Equal(t, "market-prices:/simple/price?ids=bitcoin&vs=usd", a)

	assert.Equal(t, "p:/x", Fingerprint("p", "/x", nil))
	assert.NotEqual(t,
		Fingerprint("p", "/x", map[string]string{"a": "1"}),
		Fingerprint("q", "/x", map[string]string{"a": "1"}))
	assert.NotEqual(t,
		Fingerprint("p", "/x", map[string]string{"a": "1&b=2"}),
		Fingerprint("p", "/x", map[string]string{"a": "1", "b": "2"}))
}
