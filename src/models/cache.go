package models

import "time"

// -----------------------------------------------------------------------------

// MCacheEntry is one cached provider response keyed by its request fingerprint.
type MCacheEntry struct {
	Key        string        `json:"key"`
	Payload    []byte        `json:"payload"`
	InsertedAt time.Time     `json:"inserted_at"`
	TTL        time.Duration `json:"ttl"`
}

// -----------------------------------------------------------------------------

// Expired reports whether the entry is no longer fresh at now.
// An entry with a zero TTL is expired as soon as it is inserted.
func (e *MCacheEntry) Expired(now time.Time) bool {
	return now.Sub(e.InsertedAt) >= e.TTL
}

// -----------------------------------------------------------------------------

// MCacheStats reports cache performance counters.
type MCacheStats struct {
	Entries   int   `json:"entries"`
	Stale     int   `json:"stale"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}
