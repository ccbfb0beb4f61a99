// Package observer is the explicit subscribe/notify mechanism used in place of
// an ambient event bus. Delivery is a plain synchronous call per handler.
package observer

import (
	"fmt"
	"sync"

	"resilient-feed/src/logger"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------

type registration[T any] struct {
	token   string
	handler func(T)
}

// Registry keeps handlers in registration order.
type Registry[T any] struct {
	name   string
	logger *logger.Logger

	mu       sync.RWMutex
	handlers []registration[T]
}

// -----------------------------------------------------------------------------

// New creates an empty registry. name is used as the log prefix.
func New[T any](log *logger.Logger, name string) *Registry[T] {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Registry[T]{name: name, logger: log}
}

// -----------------------------------------------------------------------------

// Subscribe registers handler and returns the token that removes it.
func (r *Registry[T]) Subscribe(handler func(T)) string {
	token := uuid.NewString()

	r.mu.Lock()
	r.handlers = append(r.handlers, registration[T]{token: token, handler: handler})
	r.mu.Unlock()

	return token
}

// -----------------------------------------------------------------------------

// Unsubscribe removes the handler registered under token.
// It reports whether a handler was removed.
func (r *Registry[T]) Unsubscribe(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, reg := range r.handlers {
		if reg.token == token {
			r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// Notify calls every handler with event. A panicking handler is logged and
// does not prevent delivery to the others.
func (r *Registry[T]) Notify(event T) {
	r.mu.RLock()
	handlers := make([]registration[T], len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.RUnlock()

	for _, reg := range handlers {
		if err := r.deliver(reg.handler, event); err != nil {
			r.logger.Error("%s : handler %s failed: %v", r.name, reg.token, err)
		}
	}
}

// -----------------------------------------------------------------------------

// Len returns the number of registered handlers
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// -----------------------------------------------------------------------------

func (r *Registry[T]) deliver(handler func(T), event T) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	handler(event)
	return nil
}
