package protocols

import (
	"fmt"
	"sort"
	"sync"

	"resilient-feed/src/interfaces"
	"resilient-feed/src/logger"
)

// IProtocolConstructor builds a protocol instance.
type IProtocolConstructor func(logger *logger.Logger, serializer interfaces.ISerializer) interfaces.IProtocol

// The global constructor table. Key is the protocol name (e.g., "json").
var (
	registry = make(map[string]IProtocolConstructor)
	mu       sync.RWMutex
)

// Register is called by each protocol's init() function to add itself to the map.
func Register(name string, constructor IProtocolConstructor) error {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		return fmt.Errorf("protocol constructor already registered for name: %s", name)
	}
	registry[name] = constructor
	return nil
}

// GetConstructor is used by the factory to retrieve the constructor.
func GetConstructor(name string) (IProtocolConstructor, error) {
	mu.RLock()
	defer mu.RUnlock()
	constructor, exists := registry[name]
	if !exists {
		return nil, fmt.Errorf("unknown protocol type: %s", name)
	}
	return constructor, nil
}

// Names lists the registered protocols, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
