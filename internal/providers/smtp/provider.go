package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/lattiq/dispatcher/internal/core"
)

// DefaultName is the provider name used when none is configured.
const DefaultName = "smtp"

const defaultDialTimeout = 10 * time.Second

// Provider implements the core.Provider interface for SMTP.
type Provider struct {
	name   string
	config core.ProviderSettings
	health core.Health
}

// NewProvider creates a new SMTP provider.
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
	return p, nil
}

// Deliver sends msg over one SMTP session. With tls=true the connection is
// TLS from the start; otherwise STARTTLS is used when the server offers it.
func (p *Provider) Deliver(ctx context.Context, msg *core.Message) error {
	err := p.deliver(ctx, msg)
	if err != nil {
		err = core.WrapProviderError(p.name, "send_error", err)
	}
	p.health.Record(err)
	return err
}

func (p *Provider) deliver(ctx context.Context, msg *core.Message) error {
	host := p.config.Get("host")
	addr := net.JoinHostPort(host, p.config.Get("port"))

	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
		// Only for development servers with self-signed certificates
		InsecureSkipVerify: p.config.Get("tls_skip_verify") == "true",
	}

	conn, err := p.dial(ctx, addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	// Bound the whole session by the context deadline, if any.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer client.Close()

	if p.config.Get("tls") != "true" {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("STARTTLS failed: %w", err)
			}
		}
	}

	if username := p.config.Get("username"); username != "" {
		auth := smtp.PlainAuth("", username, p.config.Get("password"), host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("RCPT TO rejected: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(buildMessage(msg, host)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}

	return client.Quit()
}

func (p *Provider) dial(ctx context.Context, addr string, tlsConfig *tls.Config) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: defaultDialTimeout}
	if p.config.Get("tls") == "true" {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
		return tlsDialer.DialContext(ctx, "tcp", addr)
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

// ValidateConfig validates the provider configuration.
func (p *Provider) ValidateConfig() error {
	if p.config.Get("host") == "" {
		return core.NewValidationError("host", "SMTP host is required")
	}

	port := p.config.Get("port")
	if port == "" {
		return core.NewValidationError("port", "SMTP port is required")
	}

	if _, err := strconv.Atoi(port); err != nil {
		return core.NewValidationError("port", "invalid port number: "+port)
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

// buildMessage builds a plain text message in RFC 5322 format.
func buildMessage(msg *core.Message, host string) []byte {
	var message strings.Builder

	date := msg.CreatedAt
	if date.IsZero() {
		date = time.Now()
	}

	message.WriteString("From: " + headerValue(msg.From) + "\r\n")
	message.WriteString("To: " + headerValue(msg.To) + "\r\n")
	message.WriteString("Subject: " + mime.QEncoding.Encode("UTF-8", headerValue(msg.Subject)) + "\r\n")
	message.WriteString("Date: " + date.Format(time.RFC1123Z) + "\r\n")
	message.WriteString("Message-ID: <" + headerValue(msg.ID) + "@" + host + ">\r\n")
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	message.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	message.WriteString("\r\n")

	// Normalize bare line feeds to CRLF.
	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	message.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	message.WriteString("\r\n")

	return []byte(message.String())
}

var headerBreaks = strings.NewReplacer("\r", "", "\n", "")

// headerValue removes line breaks so a value cannot start a new header.
func headerValue(v string) string {
	return headerBreaks.Replace(v)
}
