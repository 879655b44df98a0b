package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"alcyxob/fitness-sessions/internal/config"
)

var ErrEmailNotConfigured = errors.New("sendgrid api key or sender address not configured")

// Email is one outgoing message.
type Email struct {
	ToAddress string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// SendGridMailer sends email through the SendGrid v3 API.
type SendGridMailer struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGridMailer(cfg config.SendGridConfig) (*SendGridMailer, error) {
	if cfg.APIKey == "" || cfg.FromEmail == "" {
		return nil, ErrEmailNotConfigured
	}
	return &SendGridMailer{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}, nil
}

func (m *SendGridMailer) Send(ctx context.Context, email Email) error {
	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail(email.ToName, email.ToAddress)
	message := mail.NewSingleEmail(from, email.Subject, to, email.PlainText, email.HTML)

	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}
