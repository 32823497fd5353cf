package sendgrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/dispatcher/internal/core"
)

func TestBuildMessage(t *testing.T) {
	msg := &core.Message{
		ID:      "email-1",
		To:      "user@example.com",
		From:    "sender@example.com",
		Subject: "Test Email",
		Body:    "This is a test email",
	}

	m := buildMessage(msg)
	assert.Equal(t, "sender@example.com", m.From.Address)
	assert.Equal(t, "Test Email", m.Subject)
	require.Len(t, m.Personalizations, 1)
	require.Len(t, m.Personalizations[0].To, 1)
	assert.Equal(t, "user@example.com", m.Personalizations[0].To[0].Address)
	require.NotEmpty(t, m.Content)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "This is a test email", m.Content[0].Value)
	assert.Equal(t, "email-1", m.Headers["X-Dispatch-Id"])
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider("sg", core.ProviderSettings{"api_key": "SG.test"})
	require.NoError(t, err)
	assert.Equal(t, "sg", p.Name())
	assert.True(t, p.Healthy())

	_, err = NewProvider("", nil)
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "api_key", ve.Field)
}
