package models

import "time"

// DefaultSubstitute is served for providers without a configured substitute.
const DefaultSubstitute = `{"available":false}`

// -----------------------------------------------------------------------------

// MEndpointConfig describes one upstream endpoint, primary or fallback.
type MEndpointConfig struct {
	Name         string        `yaml:"name"`
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key,omitempty"` // Optional
	APIKeyHeader string        `yaml:"api_key_header"`
	RateLimit    float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst        int           `yaml:"burst"`
	Timeout      time.Duration `yaml:"timeout"`
	HealthPath   string        `yaml:"health_path"`
}

// -----------------------------------------------------------------------------

// MServiceConfig is the static description of one upstream provider.
// It is created once at startup and never mutated afterwards.
type MServiceConfig struct {
	Name                    string            `yaml:"name"`
	Primary                 MEndpointConfig   `yaml:"primary"`
	Fallbacks               []MEndpointConfig `yaml:"fallbacks"`
	CacheTTLSeconds         int               `yaml:"cache_ttl_seconds"`
	CircuitFailureThreshold int               `yaml:"circuit_failure_threshold"`
	CircuitResetTimeout     time.Duration     `yaml:"circuit_reset_timeout"`
	Substitute              string            `yaml:"substitute"` // raw JSON served when every path fails
}

// -----------------------------------------------------------------------------

// Endpoints returns the primary followed by the fallbacks in declared order.
func (s *MServiceConfig) Endpoints() []MEndpointConfig {
	endpoints := make([]MEndpointConfig, 0, 1+len(s.Fallbacks))
	endpoints = append(endpoints, s.Primary)
	endpoints = append(endpoints, s.Fallbacks...)
	return endpoints
}

// -----------------------------------------------------------------------------

// Clone returns a deep copy so callers cannot mutate registry state.
func (s *MServiceConfig) Clone() *MServiceConfig {
	clone := *s
	clone.Fallbacks = append([]MEndpointConfig(nil), s.Fallbacks...)
	return &clone
}
