package mailgun

import (
	"context"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/lattiq/dispatcher/internal/core"
)

// DefaultName is the provider name used when none is configured.
const DefaultName = "mailgun"

// Provider implements the core.Provider interface for Mailgun.
type Provider struct {
	name   string
	client mailgun.Mailgun
	config core.ProviderSettings
	health core.Health
}

// NewProvider creates a new Mailgun provider.
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

	client := mailgun.NewMailgun(settings.Get("domain"), settings.Get("api_key"))

	// Set base URL if provided (for EU customers)
	if baseURL := settings.Get("base_url"); baseURL != "" {
		client.SetAPIBase(baseURL)
	}

	p.client = client
	return p, nil
}

// Deliver sends msg through the Mailgun messages API.
func (p *Provider) Deliver(ctx context.Context, msg *core.Message) error {
	// mailgun-go v4.15 exposes NewMessage as a client method
	message := p.client.NewMessage(msg.From, msg.Subject, msg.Body, msg.To)
	message.AddHeader("X-Dispatch-Id", msg.ID)

	// Mailgun v4 returns 3 values: mes, id, err
	_, _, err := p.client.Send(ctx, message)
	if err != nil {
		err = core.WrapProviderError(p.name, "send_failed", err)
	}
	p.health.Record(err)
	return err
}

// ValidateConfig validates the Mailgun provider configuration.
func (p *Provider) ValidateConfig() error {
	if p.config.Get("api_key") == "" {
		return core.NewValidationError("api_key", "Mailgun API key is required")
	}
	if p.config.Get("domain") == "" {
		return core.NewValidationError("domain", "Mailgun domain is required")
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
