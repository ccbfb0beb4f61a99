package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
name: test-feed
services:
  - name: prices
    primary:
      base_url: http://primary.local
    fallbacks:
      - base_url: http://fallback.local
        timeout: 250ms
    cache_ttl_seconds: 30
    circuit_failure_threshold: 3
    circuit_reset_timeout: 1500ms
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	service := cfg.GetServiceByName("prices")
	require.NotNil(t, service)

	assert.Equal(t, "prices", service.Primary.Name)
	assert.Equal(t, 10*time.Second, service.Primary.Timeout)
	assert.Equal(t, "prices-fallback-1", service.Fallbacks[0].Name)
	assert.Equal(t, 250*time.Millisecond, service.Fallbacks[0].Timeout)
	assert.Equal(t, 1500*time.Millisecond, service.CircuitResetTimeout)
	assert.Equal(t, 3, service.CircuitFailureThreshold)
	assert.Equal(t, `{"available":false}`, service.Substitute)
	assert.Equal(t, 1, service.Primary.Burst)
	assert.Equal(t, "/", service.Primary.HealthPath)

	assert.Equal(t, 3, cfg.Health.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Health.RetryDelay)
	assert.Equal(t, 5, cfg.Realtime.MaxReconnectAttempts)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParse_ExplicitZeroCountsSurvive(t *testing.T) {
	yaml := minimalYAML + `
health:
  max_retries: 0
realtime:
  enabled: true
  endpoint: wss://push.local/ws
  max_reconnect_attempts: 0
nats:
  max_reconnects: 0
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)

	assert.Zero(t, cfg.Health.MaxRetries)
	assert.Zero(t, cfg.Realtime.MaxReconnectAttempts)
	assert.Zero(t, cfg.NATS.MaxReconnects)

	// sections present without the key still get the defaults
	cfg, err = Parse([]byte(minimalYAML + "health:\n  retry_delay: 1s\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Health.MaxRetries)
	assert.Equal(t, 60, cfg.NATS.MaxReconnects)
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no services",
			yaml: "name: x\n",
			want: "at least one service",
		},
		{
			name: "missing base url",
			yaml: "services:\n  - name: a\n    primary: {}\n",
			want: "base_url cannot be empty",
		},
		{
			name: "duplicate service",
			yaml: "services:\n  - name: a\n    primary: {base_url: http://a}\n  - name: a\n    primary: {base_url: http://b}\n",
			want: "duplicate name",
		},
		{
			name: "negative ttl",
			yaml: "services:\n  - name: a\n    cache_ttl_seconds: -1\n    primary: {base_url: http://a}\n",
			want: "cache_ttl_seconds",
		},
		{
			name: "realtime without endpoint",
			yaml: "realtime: {enabled: true}\nservices:\n  - name: a\n    primary: {base_url: http://a}\n",
			want: "realtime endpoint",
		},
		{
			name: "negative retries",
			yaml: "health: {max_retries: -1}\nservices:\n  - name: a\n    primary: {base_url: http://a}\n",
			want: "max_retries",
		},
		{
			name: "negative reconnect attempts",
			yaml: "realtime: {enabled: true, endpoint: ws://a, max_reconnect_attempts: -1}\nservices:\n  - name: a\n    primary: {base_url: http://a}\n",
			want: "max_reconnect_attempts",
		},
		{
			name: "nats without servers",
			yaml: "nats: {enabled: true}\nservices:\n  - name: a\n    primary: {base_url: http://a}\n",
			want: "NATS servers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewConfig_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	cfg, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "test-feed", cfg.Name)

	_, err = NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfigFileIsValid(t *testing.T) {
	cfg, err := NewConfig("../../config/default.yaml")
	require.NoError(t, err)
	assert.Len(t, cfg.Services, 3)
	assert.Equal(t, "market-prices-cryptocompare", cfg.GetServiceByName("market-prices").Fallbacks[0].Name)
	assert.Nil(t, cfg.GetServiceByName("unknown"))
}
