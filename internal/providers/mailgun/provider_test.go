package mailgun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/dispatcher/internal/core"
)

func TestNewProvider(t *testing.T) {
	p, err := NewProvider("", core.ProviderSettings{
		"api_key": "key-test",
		"domain":  "mg.example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultName, p.Name())
	assert.True(t, p.Healthy())
	assert.NoError(t, p.ValidateConfig())
	assert.NotNil(t, p.client)
}

func TestNewProvider_BaseURL(t *testing.T) {
	p, err := NewProvider("mg-eu", core.ProviderSettings{
		"api_key":  "key-test",
		"domain":   "mg.example.com",
		"base_url": "https://api.eu.mailgun.net/v3",
	})
	require.NoError(t, err)
	assert.Equal(t, "mg-eu", p.Name())
	assert.Contains(t, p.client.APIBase(), "api.eu.mailgun.net")
}

func TestNewProvider_InvalidSettings(t *testing.T) {
	tests := []struct {
		name     string
		settings core.ProviderSettings
		field    string
	}{
		{"no settings", nil, "api_key"},
		{"missing api key", core.ProviderSettings{"domain": "mg.example.com"}, "api_key"},
		{"missing domain", core.ProviderSettings{"api_key": "key-test"}, "domain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider("", tt.settings)
			assert.Nil(t, p)

			var ve *core.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}
