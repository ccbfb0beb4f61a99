package config

import (
	"fmt"
	"os"
	"time"

	"resilient-feed/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Expand ${VAR} references so api keys stay out of the file
	data = []byte(os.ExpandEnv(string(data)))

	return Parse(data)
}

// -----------------------------------------------------------------------------

// Parse builds a validated Config from raw YAML.
func Parse(data []byte) (*Config, error) {
	modelConfig := seedDefaults()
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// seedDefaults holds the counts whose zero is a real setting (no retries, no
// reconnects). They are set before decoding so an explicit 0 in the file wins.
func seedDefaults() models.MConfig {
	return models.MConfig{
		NATS:     models.MNATSConfig{MaxReconnects: 60},
		Health:   models.MHealthConfig{MaxRetries: 3},
		Realtime: models.MRealtimeConfig{MaxReconnectAttempts: 5},
	}
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "resilient-feed"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.StatusAPI.Host == "" {
		c.StatusAPI.Host = "0.0.0.0"
	}
	if c.StatusAPI.Port == 0 {
		c.StatusAPI.Port = 8080
	}
	if c.GRPC.Host == "" {
		c.GRPC.Host = "0.0.0.0"
	}
	if c.GRPC.Port == 0 {
		c.GRPC.Port = 9090
	}

	// NATS
	if c.NATS.ClientID == "" {
		c.NATS.ClientID = c.Name
	}
	setDuration(&c.NATS.ConnectTimeout, 5*time.Second)
	setDuration(&c.NATS.ReconnectWait, 2*time.Second)
	setDuration(&c.NATS.FlushTimeout, 2*time.Second)

	// Health monitor
	setDuration(&c.Health.Interval, 30*time.Second)
	setDuration(&c.Health.Timeout, 5*time.Second)
	setDuration(&c.Health.RetryDelay, 5*time.Second)
	setDuration(&c.Health.MaxRetryDelay, time.Minute)

	// Realtime
	if c.Realtime.Protocol == "" {
		c.Realtime.Protocol = "json"
	}
	setDuration(&c.Realtime.ConnectTimeout, 10*time.Second)
	setDuration(&c.Realtime.BaseDelay, time.Second)
	setDuration(&c.Realtime.MaxDelay, 30*time.Second)
	setDuration(&c.Realtime.PollInterval, 5*time.Second)
	setDuration(&c.Realtime.PollTimeout, 10*time.Second)

	// Services
	for _, service := range c.Services {
		if service == nil {
			continue
		}
		if service.CircuitFailureThreshold == 0 {
			service.CircuitFailureThreshold = 5
		}
		setDuration(&service.CircuitResetTimeout, time.Minute)
		if service.Substitute == "" {
			service.Substitute = models.DefaultSubstitute
		}
		applyEndpointDefaults(&service.Primary, service.Name)
		for i := range service.Fallbacks {
			applyEndpointDefaults(&service.Fallbacks[i], fmt.Sprintf("%s-fallback-%d", service.Name, i+1))
		}
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation of every section.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config name cannot be empty")
	}

	if c.StatusAPI.Enabled && (c.StatusAPI.Port <= 1024 || c.StatusAPI.Port > 65535) {
		return fmt.Errorf("invalid status api port number: %d (must be between 1025 and 65535)", c.StatusAPI.Port)
	}
	if c.GRPC.Enabled && (c.GRPC.Port <= 1024 || c.GRPC.Port > 65535) {
		return fmt.Errorf("invalid gRPC port number: %d (must be between 1025 and 65535)", c.GRPC.Port)
	}

	// Validate services
	if len(c.Services) == 0 {
		return fmt.Errorf("at least one service must be configured")
	}
	seen := make(map[string]bool, len(c.Services))
	endpointNames := make(map[string]bool)
	for i, service := range c.Services {
		if service == nil || service.Name == "" {
			return fmt.Errorf("service %d: name cannot be empty", i)
		}
		if seen[service.Name] {
			return fmt.Errorf("service '%s': duplicate name", service.Name)
		}
		seen[service.Name] = true

		if service.CacheTTLSeconds < 0 {
			return fmt.Errorf("service '%s': cache_ttl_seconds cannot be negative", service.Name)
		}
		if service.CircuitFailureThreshold < 1 {
			return fmt.Errorf("service '%s': circuit_failure_threshold must be at least 1", service.Name)
		}
		for _, endpoint := range service.Endpoints() {
			if endpoint.BaseURL == "" {
				return fmt.Errorf("service '%s': endpoint '%s' base_url cannot be empty", service.Name, endpoint.Name)
			}
			if endpoint.RateLimit < 0 {
				return fmt.Errorf("service '%s': endpoint '%s' rate_limit cannot be negative", service.Name, endpoint.Name)
			}
			if endpointNames[endpoint.Name] {
				return fmt.Errorf("service '%s': endpoint name '%s' is not unique", service.Name, endpoint.Name)
			}
			endpointNames[endpoint.Name] = true
		}
	}

	if c.Health.MaxRetries < 0 {
		return fmt.Errorf("health max_retries cannot be negative")
	}

	if c.Realtime.Enabled {
		if c.Realtime.Endpoint == "" {
			return fmt.Errorf("realtime endpoint cannot be empty when realtime is enabled")
		}
		if c.Realtime.MaxReconnectAttempts < 0 {
			return fmt.Errorf("realtime max_reconnect_attempts cannot be negative")
		}
	}

	// Validation of NATS config (minimal check)
	if c.NATS.Enabled && len(c.NATS.Servers) == 0 {
		return fmt.Errorf("NATS servers list cannot be empty when NATS is enabled")
	}

	return nil
}

// -----------------------------------------------------------------------------

// GetServiceByName returns a single service by name
func (c *Config) GetServiceByName(name string) *models.MServiceConfig {
	for _, service := range c.Services {
		if service.Name == name {
			return service
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func applyEndpointDefaults(endpoint *models.MEndpointConfig, name string) {
	if endpoint.Name == "" {
		endpoint.Name = name
	}
	setDuration(&endpoint.Timeout, 10*time.Second)
	if endpoint.Burst == 0 {
		endpoint.Burst = 1
	}
	if endpoint.HealthPath == "" {
		endpoint.HealthPath = "/"
	}
	if endpoint.APIKey != "" && endpoint.APIKeyHeader == "" {
		endpoint.APIKeyHeader = "X-API-Key"
	}
}

func setDuration(target *time.Duration, fallback time.Duration) {
	if *target <= 0 {
		*target = fallback
	}
}
