package registry

import (
	"testing"

	"resilient-feed/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServices() []*models.MServiceConfig {
	return []*models.MServiceConfig{
		{
			Name:       "market-prices",
			Primary:    models.MEndpointConfig{Name: "market-prices", BaseURL: "http://primary"},
			Fallbacks:  []models.MEndpointConfig{{Name: "market-prices-fallback-1", BaseURL: "http://fallback"}},
			Substitute: `{"prices":[]}`,
		},
		{
			Name:    "chain-data",
			Primary: models.MEndpointConfig{Name: "chain-data", BaseURL: "http://chain"},
		},
	}
}

func TestRegistry_GetAndNames(t *testing.T) {
	r, err := New(testServices())
	require.NoError(t, err)

	assert.Equal(t, []string{"market-prices", "chain-data"}, r.Names())

	service, ok := r.Get("market-prices")
	require.True(t, ok)
	assert.Equal(t, "http://fallback", service.Fallbacks[0].BaseURL)

	_, ok = r.Get("unknown")
	assert.False(t, ok)
	assert.Len(t, r.Services(), 2)
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	r, err := New(testServices())
	require.NoError(t, err)

	service, _ := r.Get("market-prices")
	service.Fallbacks[0].BaseURL = "http://mutated"
	service.Primary.BaseURL = "http://mutated"

	again, _ := r.Get("market-prices")
	assert.Equal(t, "http://fallback", again.Fallbacks[0].BaseURL)
	assert.Equal(t, "http://primary", again.Primary.BaseURL)
}

func TestRegistry_Substitute(t *testing.T) {
	r, err := New(testServices())
	require.NoError(t, err)

	assert.JSONEq(t, `{"prices":[]}`, string(r.Substitute("market-prices")))
	assert.Equal(t, `{"available":false}`, string(r.Substitute("chain-data")))
	assert.Equal(t, DefaultSubstitute, string(r.Substitute("unknown")))
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name     string
		services []*models.MServiceConfig
	}{
		{"empty name", []*models.MServiceConfig{{Name: ""}}},
		{"duplicate", []*models.MServiceConfig{{Name: "a"}, {Name: "a"}}},
		{"bad substitute", []*models.MServiceConfig{{Name: "a", Substitute: "{not json"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.services)
			assert.Error(t, err)
		})
	}
}
