// Package providers builds delivery providers by type.
package providers

import (
	"github.com/lattiq/dispatcher/internal/core"
	"github.com/lattiq/dispatcher/internal/providers/mailgun"
	"github.com/lattiq/dispatcher/internal/providers/mock"
	"github.com/lattiq/dispatcher/internal/providers/sendgrid"
	"github.com/lattiq/dispatcher/internal/providers/ses"
	"github.com/lattiq/dispatcher/internal/providers/smtp"
)

// Provider type names accepted by New.
const (
	TypeMock     = "mock"
	TypeAWSSES   = "aws_ses"
	TypeSendGrid = "sendgrid"
	TypeMailgun  = "mailgun"
	TypeSMTP     = "smtp"
)

// New creates the provider for providerType. An empty name selects the
// provider's default name.
func New(providerType, name string, settings core.ProviderSettings) (core.Provider, error) {
	if settings == nil {
		settings = core.ProviderSettings{}
	}

	switch providerType {
	case TypeMock:
		return provider(mock.NewProvider(name, settings))
	case TypeAWSSES:
		return provider(ses.NewProvider(name, settings))
	case TypeSendGrid:
		return provider(sendgrid.NewProvider(name, settings))
	case TypeMailgun:
		return provider(mailgun.NewProvider(name, settings))
	case TypeSMTP:
		return provider(smtp.NewProvider(name, settings))
	default:
		return nil, core.NewValidationErrorWithValue("type", "unsupported provider type", providerType)
	}
}

// provider keeps a nil concrete pointer from becoming a non-nil interface.
func provider(p core.Provider, err error) (core.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
