package ses

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/lattiq/dispatcher/internal/core"
)

// DefaultName is the provider name used when none is configured.
const DefaultName = "aws_ses"

// Provider implements the core.Provider interface for AWS SES.
type Provider struct {
	name   string
	client *ses.Client
	config core.ProviderSettings
	health core.Health
}

// NewProvider creates a new AWS SES provider.
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

	// Load AWS config
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(settings.Get("region")),
	)
	if err != nil {
		return nil, core.NewProviderError(name, "config_error", "failed to load AWS config: "+err.Error())
	}

	// Override with explicit credentials if provided
	if accessKey := settings.Get("access_key"); accessKey != "" {
		secretKey := settings.Get("secret_key")
		cfg.Credentials = aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     accessKey,
				SecretAccessKey: secretKey,
				SessionToken:    settings.Get("session_token"),
			}, nil
		})
	}

	p.client = ses.NewFromConfig(cfg)
	return p, nil
}

// Deliver sends msg with the SES SendEmail API.
func (p *Provider) Deliver(ctx context.Context, msg *core.Message) error {
	input := buildInput(msg, p.config.Get("configuration_set"))

	_, err := p.client.SendEmail(ctx, input)
	if err != nil {
		err = core.WrapProviderError(p.name, "send_error", err)
	}
	p.health.Record(err)
	return err
}

func buildInput(msg *core.Message, configSet string) *ses.SendEmailInput {
	input := &ses.SendEmailInput{
		Source: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(msg.Body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if configSet != "" {
		input.ConfigurationSetName = aws.String(configSet)
	}
	return input
}

// ValidateConfig validates the provider configuration.
func (p *Provider) ValidateConfig() error {
	if p.config.Get("region") == "" {
		return core.NewValidationError("region", "AWS region is required")
	}
	if p.config.Get("access_key") != "" && p.config.Get("secret_key") == "" {
		return core.NewValidationError("secret_key", "secret key is required when access key is provided")
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
