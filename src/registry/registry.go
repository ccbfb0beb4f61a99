// Package registry is the static description of every upstream provider.
// It is built once from configuration and never mutated afterwards.
package registry

import (
	"encoding/json"
	"fmt"

	"resilient-feed/src/models"
)

// DefaultSubstitute is served for providers without a configured substitute.
const DefaultSubstitute = models.DefaultSubstitute

// -----------------------------------------------------------------------------

// Registry maps provider names to their service configuration.
type Registry struct {
	services map[string]*models.MServiceConfig
	names    []string
}

// -----------------------------------------------------------------------------

// New validates and indexes services. Names must be unique and every
// substitute must be valid JSON.
func New(services []*models.MServiceConfig) (*Registry, error) {
	r := &Registry{
		services: make(map[string]*models.MServiceConfig, len(services)),
		names:    make([]string, 0, len(services)),
	}

	for _, service := range services {
		if service == nil {
			continue
		}
		if service.Name == "" {
			return nil, fmt.Errorf("service name cannot be empty")
		}
		if _, exists := r.services[service.Name]; exists {
			return nil, fmt.Errorf("service already registered for name: %s", service.Name)
		}
		if service.Substitute != "" && !json.Valid([]byte(service.Substitute)) {
			return nil, fmt.Errorf("service %s: substitute is not valid JSON", service.Name)
		}
		r.services[service.Name] = service.Clone()
		r.names = append(r.names, service.Name)
	}

	return r, nil
}

// -----------------------------------------------------------------------------

// Get returns a copy of the named service configuration.
func (r *Registry) Get(name string) (*models.MServiceConfig, bool) {
	service, ok := r.services[name]
	if !ok {
		return nil, false
	}
	return service.Clone(), true
}

// -----------------------------------------------------------------------------

// Names returns provider names in declaration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// -----------------------------------------------------------------------------

// Services returns copies of every service in declaration order.
func (r *Registry) Services() []*models.MServiceConfig {
	services := make([]*models.MServiceConfig, 0, len(r.names))
	for _, name := range r.names {
		services = append(services, r.services[name].Clone())
	}
	return services
}

// -----------------------------------------------------------------------------

// Substitute returns the static payload served when every path failed.
// Unknown providers get DefaultSubstitute.
func (r *Registry) Substitute(name string) []byte {
	if service, ok := r.services[name]; ok && service.Substitute != "" {
		return []byte(service.Substitute)
	}
	return []byte(DefaultSubstitute)
}
