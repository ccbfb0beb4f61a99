package cache

import (
	"container/list"
	"net/url"
	"sync"
	"time"

	"resilient-feed/src/interfaces"
	"resilient-feed/src/logger"
	"resilient-feed/src/models"
)

// -----------------------------------------------------------------------------

// MemoryCache is a TTL keyed store of provider responses.
//
// Expiry is checked lazily on read. An expired or evicted entry leaves the
// live set and is parked on a stale shelf, where GetStale can still find it
// until a newer Set for the same key replaces it or the shelf overflows.
type MemoryCache struct {
	name       string
	logger     *logger.Logger
	maxEntries int
	now        func() time.Time

	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // insertion order, oldest first
	stale      map[string]*list.Element
	staleOrder *list.List

	hits      int64
	misses    int64
	evictions int64
}

var _ interfaces.ICache = (*MemoryCache)(nil)

// -----------------------------------------------------------------------------

// NewMemoryCache creates a cache. maxEntries <= 0 means no size limit.
func NewMemoryCache(config *models.MCacheConfig, log *logger.Logger) *MemoryCache {
	maxEntries := 0
	if config != nil {
		maxEntries = config.MaxEntries
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &MemoryCache{
		name:       "cache",
		logger:     log,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		stale:      make(map[string]*list.Element),
		staleOrder: list.New(),
	}
}

// -----------------------------------------------------------------------------

// Fingerprint builds the deterministic cache key of one logical request.
// Parameter order does not matter.
func Fingerprint(provider, endpoint string, params map[string]string) string {
	key := provider + ":" + endpoint
	if len(params) == 0 {
		return key
	}

	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	// Encode sorts by key
	return key + "?" + values.Encode()
}

// -----------------------------------------------------------------------------

// Get returns the payload stored under key while now - insertedAt < ttl.
// An expired entry is removed from the live set on the way.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	entry := element.Value.(*models.MCacheEntry)
	if entry.Expired(c.now()) {
		c.removeLive(key, element)
		c.shelve(entry)
		c.misses++
		c.logger.Debug("%s : entry %s expired", c.name, key)
		return nil, false
	}

	c.hits++
	return clonePayload(entry.Payload), true
}

// -----------------------------------------------------------------------------

// Set stores payload under key for ttlSeconds. Any prior entry for the key,
// live or stale, is replaced.
func (c *MemoryCache) Set(key string, payload []byte, ttlSeconds int) {
	if ttlSeconds < 0 {
		ttlSeconds = 0
	}

	entry := &models.MCacheEntry{
		Key:        key,
		Payload:    clonePayload(payload),
		InsertedAt: c.now(),
		TTL:        time.Duration(ttlSeconds) * time.Second,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.stale[key]; ok {
		c.staleOrder.Remove(element)
		delete(c.stale, key)
	}
	if element, ok := c.entries[key]; ok {
		c.removeLive(key, element)
	}

	// Least recently inserted goes first
	for c.maxEntries > 0 && c.order.Len() >= c.maxEntries {
		oldest := c.order.Front()
		evicted := oldest.Value.(*models.MCacheEntry)
		c.removeLive(evicted.Key, oldest)
		c.shelve(evicted)
		c.evictions++
		c.logger.Debug("%s : evicted %s", c.name, evicted.Key)
	}

	c.entries[key] = c.order.PushBack(entry)
}

// -----------------------------------------------------------------------------

// GetStale returns the last payload stored under key regardless of its age.
func (c *MemoryCache) GetStale(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.entries[key]; ok {
		return clonePayload(element.Value.(*models.MCacheEntry).Payload), true
	}
	if element, ok := c.stale[key]; ok {
		return clonePayload(element.Value.(*models.MCacheEntry).Payload), true
	}
	return nil, false
}

// -----------------------------------------------------------------------------

// Len returns the size of the live set, expired entries not yet read included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// -----------------------------------------------------------------------------

// Stats returns a snapshot of the cache counters.
func (c *MemoryCache) Stats() models.MCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return models.MCacheStats{
		Entries:   c.order.Len(),
		Stale:     c.staleOrder.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// -----------------------------------------------------------------------------

// removeLive must be called with c.mu held.
func (c *MemoryCache) removeLive(key string, element *list.Element) {
	c.order.Remove(element)
	delete(c.entries, key)
}

// shelve must be called with c.mu held.
func (c *MemoryCache) shelve(entry *models.MCacheEntry) {
	if element, ok := c.stale[entry.Key]; ok {
		c.staleOrder.Remove(element)
	}
	c.stale[entry.Key] = c.staleOrder.PushBack(entry)

	for c.maxEntries > 0 && c.staleOrder.Len() > c.maxEntries {
		oldest := c.staleOrder.Front()
		c.staleOrder.Remove(oldest)
		delete(c.stale, oldest.Value.(*models.MCacheEntry).Key)
	}
}

func clonePayload(payload []byte) []byte {
	if payload == nil {
		return nil
	}
	return append([]byte(nil), payload...)
}
