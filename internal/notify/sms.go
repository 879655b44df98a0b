package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"alcyxob/fitness-sessions/internal/config"
)

var (
	ErrSMSNotConfigured = errors.New("twilio credentials or sender number not configured")
	ErrNotE164          = errors.New("phone number must be in E.164 format")
)

type Texter interface {
	Send(ctx context.Context, to, body string) error
}

// TwilioTexter sends SMS through the Twilio REST API.
type TwilioTexter struct {
	client     *twilio.RestClient
	fromNumber string
}

func NewTwilioTexter(cfg config.TwilioConfig) (*TwilioTexter, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		return nil, ErrSMSNotConfigured
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   cfg.AccountSID,
		Password:   cfg.AuthToken,
		AccountSid: cfg.AccountSID,
	})
	return &TwilioTexter{client: client, fromNumber: cfg.FromNumber}, nil
}

// Send delivers body to an E.164 number. The Twilio client has no context support,
// so ctx is only checked before the call.
func (t *TwilioTexter) Send(ctx context.Context, to, body string) error {
	if !strings.HasPrefix(to, "+") {
		return fmt.Errorf("%w: %q", ErrNotE164, to)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.fromNumber)
	params.SetBody(body)

	if _, err := t.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	return nil
}
