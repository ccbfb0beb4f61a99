package breaker

import (
	"sync"

	"resilient-feed/src/logger"
	"resilient-feed/src/models"
	"resilient-feed/src/observer"
)

// -----------------------------------------------------------------------------

// Manager owns one Breaker per provider and fans out their transitions.
type Manager struct {
	logger *logger.Logger

	mu       sync.RWMutex
	breakers map[string]*Breaker
	order    []string

	transitions *observer.Registry[models.MBreakerTransition]
}

// -----------------------------------------------------------------------------

// NewManager creates a breaker for every service.
func NewManager(services []*models.MServiceConfig, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}

	m := &Manager{
		logger:      log,
		breakers:    make(map[string]*Breaker, len(services)),
		transitions: observer.New[models.MBreakerTransition](log, "breakers"),
	}

	for _, service := range services {
		m.Register(service)
	}
	return m
}

// -----------------------------------------------------------------------------

// Register creates the breaker of a service unless it already exists.
func (m *Manager) Register(service *models.MServiceConfig) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, exists := m.breakers[service.Name]; exists {
		return breaker
	}

	breaker := New(service.Name, service.CircuitFailureThreshold, service.CircuitResetTimeout, m.logger, m.transitions.Notify)
	m.breakers[service.Name] = breaker
	m.order = append(m.order, service.Name)

	m.logger.Debug("%s : circuit breaker created (threshold %d, reset %s)",
		service.Name, service.CircuitFailureThreshold, service.CircuitResetTimeout)
	return breaker
}

// -----------------------------------------------------------------------------

// Get returns the breaker of provider.
func (m *Manager) Get(provider string) (*Breaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	breaker, ok := m.breakers[provider]
	return breaker, ok
}

// -----------------------------------------------------------------------------

// Snapshot returns the state of every breaker keyed by provider.
func (m *Manager) Snapshot() map[string]models.MCircuitBreakerState {
	m.mu.RLock()
	breakers := make([]*Breaker, 0, len(m.order))
	for _, name := range m.order {
		breakers = append(breakers, m.breakers[name])
	}
	m.mu.RUnlock()

	snapshot := make(map[string]models.MCircuitBreakerState, len(breakers))
	for _, breaker := range breakers {
		snapshot[breaker.Provider()] = breaker.Snapshot()
	}
	return snapshot
}

// -----------------------------------------------------------------------------

// OnStateChange registers a transition handler and returns its token.
func (m *Manager) OnStateChange(handler func(models.MBreakerTransition)) string {
	return m.transitions.Subscribe(handler)
}

// Unsubscribe removes a handler registered with OnStateChange.
func (m *Manager) Unsubscribe(token string) bool {
	return m.transitions.Unsubscribe(token)
}
