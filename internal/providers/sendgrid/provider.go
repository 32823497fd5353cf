package sendgrid

import (
	"context"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/lattiq/dispatcher/internal/core"
)

// DefaultName is the provider name used when none is configured.
const DefaultName = "sendgrid"

// Provider implements the core.Provider interface for SendGrid.
type Provider struct {
	name   string
	client *sendgrid.Client
	config core.ProviderSettings
	health core.Health
}

// NewProvider creates a new SendGrid provider.
func NewProvider(name string, settings core.ProviderSettings) (*Provider, error) {
	if name == "" {
		name = DefaultName
	}

	p := &Provider{
		name:   name,
		config: settings,
	}
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	p.client = sendgrid.NewSendClient(settings.Get("api_key"))
	return p, nil
}

// Deliver sends msg through the SendGrid v3 mail send API.
func (p *Provider) Deliver(ctx context.Context, msg *core.Message) error {
	response, err := p.client.SendWithContext(ctx, buildMessage(msg))
	if err != nil {
		err = core.WrapProviderError(p.name, "send_error", err)
		p.health.Record(err)
		return err
	}

	if response.StatusCode >= 400 {
		apiErr := core.NewProviderError(p.name, "api_error", "SendGrid API error: "+response.Body)
		apiErr.StatusCode = response.StatusCode
		apiErr.IsRetryable = response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= 500
		p.health.Record(apiErr)
		return apiErr
	}

	p.health.Record(nil)
	return nil
}

func buildMessage(msg *core.Message) *mail.SGMailV3 {
	from := mail.NewEmail("", msg.From)
	to := mail.NewEmail("", msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, "")
	message.SetHeader("X-Dispatch-Id", msg.ID)
	return message
}

// ValidateConfig validates the provider configuration.
func (p *Provider) ValidateConfig() error {
	if p.config.Get("api_key") == "" {
		return core.NewValidationError("api_key", "SendGrid API key is required")
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return p.name
}

// Healthy reports whether the last delivery succeeded.
func (p *Provider) Healthy() bool {
	return p.health.Healthy()
}
