// Package notify alerts shop owners out-of-band, over Twilio SMS, when a
// customer asks for a human.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Notifier delivers an alert to a shop owner's phone.
type Notifier interface {
	NotifyOwner(ctx context.Context, ownerPhone, text string) error
}

// LogNotifier is a stand-in used when Twilio is not configured; alerts
// only reach the application log.
type LogNotifier struct{}

// NotifyOwner logs the alert instead of delivering it.
func (LogNotifier) NotifyOwner(_ context.Context, ownerPhone, text string) error {
	slog.Warn("Owner alert not delivered, Twilio is not configured", "ownerPhone", ownerPhone, "text", text)
	return nil
}

// Opts holds configuration options for the Twilio notifier.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option defines a configuration option for the Twilio notifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number in E.164 format.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// TwilioNotifier sends owner alerts as SMS.
type TwilioNotifier struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioNotifier creates the notifier, falling back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, and TWILIO_FROM_NUMBER
// environment variables for unset options.
func NewTwilioNotifier(opts ...Option) (*TwilioNotifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	slog.Debug("TwilioNotifier created", "from", cfg.FromNumber)
	return &TwilioNotifier{client: client, from: cfg.FromNumber}, nil
}

// NotifyOwner sends one SMS to the owner's phone.
func (n *TwilioNotifier) NotifyOwner(ctx context.Context, ownerPhone, text string) error {
	if ownerPhone == "" {
		slog.Debug("TwilioNotifier skipped, owner has no phone on file")
		return nil
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(ownerPhone)
	params.SetFrom(n.from)
	params.SetBody(text)

	if _, err := n.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioNotifier send failed", "error", err, "to", ownerPhone)
		return fmt.Errorf("notify owner %s: %w", ownerPhone, err)
	}
	slog.Info("TwilioNotifier alert sent", "to", ownerPhone)
	return nil
}
