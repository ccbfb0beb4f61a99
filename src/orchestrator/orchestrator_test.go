package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"resilient-feed/src/breaker"
	"resilient-feed/src/cache"
	"resilient-feed/src/interfaces"
	"resilient-feed/src/models"
	"resilient-feed/src/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

// fakeFetcher answers per endpoint name and records the call order
type fakeFetcher struct {
	mu      sync.Mutex
	replies map[string]func() ([]byte, error)
	calls   []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{replies: make(map[string]func() ([]byte, error))}
}

func (f *fakeFetcher) On(endpoint string, reply func() ([]byte, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[endpoint] = reply
}

func (f *fakeFetcher) Fetch(_ context.Context, endpoint models.MEndpointConfig, _ string, _ map[string]string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, endpoint.Name)
	reply, ok := f.replies[endpoint.Name]
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%s: no reply configured", endpoint.Name)
	}
	return reply()
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeFetcher) Count(endpoint string) int {
	n := 0
	for _, call := range f.Calls() {
		if call == endpoint {
			n++
		}
	}
	return n
}

func ok(payload string) func() ([]byte, error) {
	return func() ([]byte, error) { return []byte(payload), nil }
}

func fail() ([]byte, error) {
	return nil, errors.New("connection refused")
}

// -----------------------------------------------------------------------------

// fakeCache lets tests seed stale entries directly
type fakeCache struct {
	mu    sync.Mutex
	fresh map[string][]byte
	stale map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{fresh: map[string][]byte{}, stale: map[string][]byte{}}
}

func (c *fakeCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.fresh[key]
	return v, ok
}

func (c *fakeCache) Set(key string, payload []byte, _ int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fresh[key] = payload
	c.stale[key] = payload
}

func (c *fakeCache) GetStale(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.stale[key]
	return v, ok
}

// -----------------------------------------------------------------------------

func testService() *models.MServiceConfig {
	return &models.MServiceConfig{
		Name:    "market-prices",
		Primary: models.MEndpointConfig{Name: "primary", BaseURL: "http://primary"},
		Fallbacks: []models.MEndpointConfig{
			{Name: "fallback-1", BaseURL: "http://f1"},
			{Name: "fallback-2", BaseURL: "http://f2"},
		},
		CacheTTLSeconds:         30,
		CircuitFailureThreshold: 3,
		CircuitResetTimeout:     time.Minute,
		Substitute:              `{"prices":[],"available":false}`,
	}
}

func newTestOrchestrator(t *testing.T, store interfaces.ICache, services ...*models.MServiceConfig) (*Orchestrator, *fakeFetcher, *breaker.Manager) {
	t.Helper()
	if len(services) == 0 {
		services = []*models.MServiceConfig{testService()}
	}
	reg, err := registry.New(services)
	require.NoError(t, err)

	breakers := breaker.NewManager(reg.Services(), nil)
	fetcher := newFakeFetcher()
	return New(reg, store, breakers, fetcher, nil, nil), fetcher, breakers
}

// -----------------------------------------------------------------------------

func TestRequest_PrimarySuccessIsCached(t *testing.T) {
	o, fetcher, _ := newTestOrchestrator(t, newFakeCache())
	fetcher.On("primary", ok(`{"BTC":67250}`))

	params := map[string]string{"ids": "bitcoin"}
	first := o.Request(context.Background(), "market-prices", "/simple/price", params, true)
	assert.Equal(t, models.SourcePrimary, first.Source)
	assert.Equal(t, "primary", first.Served)
	assert.JSONEq(t, `{"BTC":67250}`, string(first.Payload))

	second := o.Request(context.Background(), "market-prices", "/simple/price", params, true)
	assert.Equal(t, models.SourceCache, second.Source)
	assert.JSONEq(t, `{"BTC":67250}`, string(second.Payload))
	assert.Equal(t, 1, fetcher.Count("primary"))
}

func TestRequest_UseCacheFalseStillRefreshes(t *testing.T) {
	store := newFakeCache()
	o, fetcher, _ := newTestOrchestrator(t, store)
	fetcher.On("primary", ok(`1`))

	o.Request(context.Background(), "market-prices", "/x", nil, true)
	fetcher.On("primary", ok(`2`))

	result := o.Request(context.Background(), "market-prices", "/x", nil, false)
	assert.Equal(t, models.SourcePrimary, result.Source)
	assert.Equal(t, 2, fetcher.Count("primary"))

	cached, hit := store.Get(cache.Fingerprint("market-prices", "/x", nil))
	require.True(t, hit)
	assert.Equal(t, "2", string(cached))
}

func TestRequest_FallbacksInDeclaredOrder(t *testing.T) {
	o, fetcher, breakers := newTestOrchestrator(t, newFakeCache())
	fetcher.On("primary", fail)
	fetcher.On("fallback-1", fail)
	fetcher.On("fallback-2", ok(`"f2"`))

	result := o.Request(context.Background(), "market-prices", "/x", nil, true)
	assert.Equal(t, models.SourceFallback, result.Source)
	assert.Equal(t, "fallback-2", result.Served)
	assert.Equal(t, []string{"primary", "fallback-1", "fallback-2"}, fetcher.Calls())

	// only the primary provider breaker is touched
	assert.Equal(t, 1, breakers.Snapshot()["market-prices"].FailureCount)
}

func TestRequest_FallbackSuccessIsCached(t *testing.T) {
	o, fetcher, _ := newTestOrchestrator(t, newFakeCache())
	fetcher.On("primary", fail)
	fetcher.On("fallback-1", ok(`"f1"`))

	o.Request(context.Background(), "market-prices", "/x", nil, true)
	again := o.Request(context.Background(), "market-prices", "/x", nil, true)
	assert.Equal(t, models.SourceCache, again.Source)
	assert.Equal(t, `"f1"`, string(again.Payload))
}

func TestRequest_StaleWhenEverythingFails(t *testing.T) {
	store := newFakeCache()
	store.stale[cache.Fingerprint("market-prices", "/x", nil)] = []byte(`"last-good"`)

	o, fetcher, _ := newTestOrchestrator(t, store)
	fetcher.On("primary", fail)
	fetcher.On("fallback-1", fail)
	fetcher.On("fallback-2", fail)

	result := o.Request(context.Background(), "market-prices", "/x", nil, true)
	assert.Equal(t, models.SourceStale, result.Source)
	assert.Equal(t, `"last-good"`, string(result.Payload))
	assert.True(t, result.Degraded())
}

func TestRequest_SubstituteWhenNothingCached(t *testing.T) {
	o, fetcher, _ := newTestOrchestrator(t, newFakeCache())
	fetcher.On("primary", fail)

	result := o.Request(context.Background(), "market-prices", "/x", nil, true)
	assert.Equal(t, models.SourceSubstitute, result.Source)
	assert.JSONEq(t, `{"prices":[],"available":false}`, string(result.Payload))
}

func TestRequest_UnknownProvider(t *testing.T) {
	o, fetcher, _ := newTestOrchestrator(t, newFakeCache())

	result := o.Request(context.Background(), "nope", "/x", nil, true)
	assert.Equal(t, models.SourceSubstitute, result.Source)
	assert.Equal(t, registry.DefaultSubstitute, string(result.Payload))
	assert.Empty(t, fetcher.Calls())
}

func TestRequest_OpenBreakerSkipsPrimary(t *testing.T) {
	service := testService()
	service.Fallbacks = service.Fallbacks[:1]

	o, fetcher, breakers := newTestOrchestrator(t, newFakeCache(), service)
	fetcher.On("primary", fail)
	fetcher.On("fallback-1", fail)

	for i := 0; i < 3; i++ {
		result := o.Request(context.Background(), "market-prices", "/x", nil, false)
		assert.Equal(t, models.SourceSubstitute, result.Source)
	}
	require.Equal(t, 3, fetcher.Count("primary"))
	assert.Equal(t, models.BreakerOpen, breakers.Snapshot()["market-prices"].State)

	// fourth call: no network attempt against the primary
	fetcher.On("fallback-1", ok(`"f1"`))
	result := o.Request(context.Background(), "market-prices", "/x", nil, false)

	assert.Equal(t, 3, fetcher.Count("primary"))
	assert.Equal(t, models.SourceFallback, result.Source)
	assert.Equal(t, "fallback-1", result.Served)
}

func TestRequest_CancelledCallerDoesNotTripBreaker(t *testing.T) {
	store := newFakeCache()
	o, fetcher, breakers := newTestOrchestrator(t, store)
	fetcher.On("primary", ok(`"live"`))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		result := o.Request(cancelled, "market-prices", "/x", nil, false)
		assert.Equal(t, models.SourceSubstitute, result.Source)
	}
	assert.Empty(t, fetcher.Calls())

	snapshot := breakers.Snapshot()["market-prices"]
	assert.Equal(t, models.BreakerClosed, snapshot.State)
	assert.Zero(t, snapshot.FailureCount)

	result := o.Request(context.Background(), "market-prices", "/x", nil, false)
	assert.Equal(t, models.SourcePrimary, result.Source)
	assert.Equal(t, `"live"`, string(result.Payload))
}

func TestRequest_CancelledMidAttemptIsNotAFailure(t *testing.T) {
	store := newFakeCache()
	o, fetcher, breakers := newTestOrchestrator(t, store)
	fetcher.On("fallback-1", ok(`"f1"`))

	key := cache.Fingerprint("market-prices", "/x", nil)
	store.stale[key] = []byte(`"old"`)

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		fetcher.On("primary", func() ([]byte, error) {
			cancel()
			return nil, context.Canceled
		})

		result := o.Request(ctx, "market-prices", "/x", nil, false)
		assert.Equal(t, models.SourceStale, result.Source)
		assert.Equal(t, `"old"`, string(result.Payload))
	}

	assert.Equal(t, 3, fetcher.Count("primary"))
	assert.Zero(t, fetcher.Count("fallback-1"), "no fallback for a caller that went away")

	snapshot := breakers.Snapshot()["market-prices"]
	assert.Equal(t, models.BreakerClosed, snapshot.State)
	assert.Zero(t, snapshot.FailureCount)
}

func TestRequest_ConcurrentIdenticalRequestsAreNotCoalesced(t *testing.T) {
	store := cache.NewMemoryCache(&models.MCacheConfig{}, nil)
	o, fetcher, _ := newTestOrchestrator(t, store)

	var arrived sync.WaitGroup
	arrived.Add(2)
	fetcher.On("primary", func() ([]byte, error) {
		// both requests must be in flight before either answers
		arrived.Done()
		arrived.Wait()
		return []byte(`{"BTC":67250}`), nil
	})

	var wg sync.WaitGroup
	results := make([]models.MResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.Request(context.Background(), "market-prices", "/price", map[string]string{"id": "BTC"}, true)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, fetcher.Count("primary"))
	for _, result := range results {
		assert.Equal(t, models.SourcePrimary, result.Source)
	}

	cached, hit := store.Get(cache.Fingerprint("market-prices", "/price", map[string]string{"id": "BTC"}))
	require.True(t, hit)
	assert.JSONEq(t, `{"BTC":67250}`, string(cached))
}

func TestRequest_NotCachedWhenTTLIsZero(t *testing.T) {
	service := testService()
	service.CacheTTLSeconds = 0

	store := newFakeCache()
	o, fetcher, _ := newTestOrchestrator(t, store, service)
	fetcher.On("primary", ok(`1`))

	o.Request(context.Background(), "market-prices", "/x", nil, true)
	o.Request(context.Background(), "market-prices", "/x", nil, true)

	assert.Equal(t, 2, fetcher.Count("primary"))
	assert.Empty(t, store.fresh)
}
