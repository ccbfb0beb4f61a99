package interfaces

// -----------------------------------------------------------------------------

// ICache is the response cache consulted by the orchestrator.
type ICache interface {
	// Get returns a payload only while it is fresh
	Get(key string) ([]byte, bool)

	// Set stores a payload for ttlSeconds, overwriting any prior entry
	Set(key string, payload []byte, ttlSeconds int)

	// GetStale returns the last payload stored under key, fresh or not
	GetStale(key string) ([]byte, bool)
}
