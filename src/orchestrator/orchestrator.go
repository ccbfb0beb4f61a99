// Package orchestrator routes one logical request through cache, circuit
// breaker, primary endpoint and fallback chain, and always returns a payload.
package orchestrator

import (
	"context"
	"time"

	"resilient-feed/src/breaker"
	"resilient-feed/src/cache"
	"resilient-feed/src/interfaces"
	"resilient-feed/src/logger"
	"resilient-feed/src/metrics"
	"resilient-feed/src/models"
	"resilient-feed/src/registry"
)

// -----------------------------------------------------------------------------

// Orchestrator owns the interaction with the cache and the breakers.
// Identical concurrent requests are not coalesced; each performs its own
// attempts.
type Orchestrator struct {
	name     string
	logger   *logger.Logger
	registry *registry.Registry
	cache    interfaces.ICache
	breakers *breaker.Manager
	fetcher  interfaces.IFetcher
	metrics  *metrics.Metrics
}

// -----------------------------------------------------------------------------

// New wires an orchestrator. m may be nil.
func New(reg *registry.Registry, store interfaces.ICache, breakers *breaker.Manager, fetcher interfaces.IFetcher, log *logger.Logger, m *metrics.Metrics) *Orchestrator {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Orchestrator{
		name:     "orchestrator",
		logger:   log,
		registry: reg,
		cache:    store,
		breakers: breakers,
		fetcher:  fetcher,
		metrics:  m,
	}
}

// -----------------------------------------------------------------------------

// Request returns the payload for (provider, endpoint, params). It never fails:
// when every upstream path is exhausted the result carries a stale cache entry
// or the provider substitute, and Source says which.
//
// useCache=false skips the cache read; a successful answer is still stored.
func (o *Orchestrator) Request(ctx context.Context, provider, endpoint string, params map[string]string, useCache bool) models.MResult {
	result := o.request(ctx, provider, endpoint, params, useCache)
	o.metrics.RecordResult(ctx, result)
	return result
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) request(ctx context.Context, provider, endpoint string, params map[string]string, useCache bool) models.MResult {
	result := models.MResult{Provider: provider, Endpoint: endpoint}

	service, ok := o.registry.Get(provider)
	if !ok {
		o.logger.Error("%s : unknown provider %s, serving substitute", o.name, provider)
		result.Source = models.SourceSubstitute
		result.Payload = o.registry.Substitute(provider)
		return result
	}

	key := cache.Fingerprint(provider, endpoint, params)

	// 1. Cache
	if useCache {
		if payload, hit := o.cache.Get(key); hit {
			result.Source = models.SourceCache
			result.Payload = payload
			return result
		}
	}

	// 2. Breaker gate and 3. primary. A caller that is already gone costs
	// the provider nothing.
	primary := o.breaker(service)
	if ctx.Err() != nil {
		o.logger.Warning("%s : %s request cancelled before any attempt: %v", o.name, provider, ctx.Err())
	} else if attempt, allowed := primary.Allow(); allowed {
		payload, err := o.attempt(ctx, service.Name, service.Primary, endpoint, params)
		switch {
		case err == nil:
			attempt.Done(true)
			o.store(service, key, payload)
			result.Source = models.SourcePrimary
			result.Served = service.Primary.Name
			result.Payload = payload
			return result
		case ctx.Err() != nil:
			attempt.Abandon()
			o.logger.Warning("%s : %s request cancelled during primary attempt: %v", o.name, provider, ctx.Err())
		default:
			attempt.Done(false)
			o.logger.Warning("%s : %s primary failed: %v", o.name, provider, err)
		}
	} else {
		o.logger.Warning("%s : %s circuit open, skipping primary", o.name, provider)
	}

	// 4. Fallback chain, strictly in declared order
	for _, fallback := range service.Fallbacks {
		if ctx.Err() != nil {
			break
		}
		payload, err := o.attempt(ctx, service.Name, fallback, endpoint, params)
		if err != nil {
			o.logger.Warning("%s : %s fallback %s failed: %v", o.name, provider, fallback.Name, err)
			continue
		}
		o.store(service, key, payload)
		result.Source = models.SourceFallback
		result.Served = fallback.Name
		result.Payload = payload
		return result
	}

	// 5. Stale entry, then substitute
	if payload, ok := o.cache.GetStale(key); ok {
		o.logger.Warning("%s : %s exhausted every endpoint, serving stale %s", o.name, provider, key)
		result.Source = models.SourceStale
		result.Payload = payload
		return result
	}

	o.logger.Error("%s : %s exhausted every endpoint and has no cached value, serving substitute", o.name, provider)
	result.Source = models.SourceSubstitute
	result.Payload = o.registry.Substitute(provider)
	return result
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) attempt(ctx context.Context, provider string, target models.MEndpointConfig, endpoint string, params map[string]string) ([]byte, error) {
	start := time.Now()
	payload, err := o.fetcher.Fetch(ctx, target, endpoint, params)
	o.metrics.RecordAttempt(ctx, provider, target.Name, time.Since(start), err)
	return payload, err
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) store(service *models.MServiceConfig, key string, payload []byte) {
	if service.CacheTTLSeconds <= 0 {
		return
	}
	o.cache.Set(key, payload, service.CacheTTLSeconds)
}

// -----------------------------------------------------------------------------

func (o *Orchestrator) breaker(service *models.MServiceConfig) *breaker.Breaker {
	if b, ok := o.breakers.Get(service.Name); ok {
		return b
	}
	return o.breakers.Register(service)
}
