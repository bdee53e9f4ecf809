package provider

import (
	"context"
	"errors"
	"time"

	"github.com/resend/resend-go/v2"
)

// resendEmails is the subset of the Resend SDK used for sending.
type resendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Resend implements the Provider interface using the Resend SDK.
type Resend struct {
	emails resendEmails
	apiKey string
}

// NewResend creates a Resend provider from the given configuration.
func NewResend(cfg ProviderConfig) *Resend {
	client := resend.NewClient(cfg.APIKey)
	return &Resend{
		emails: client.Emails,
		apiKey: cfg.APIKey,
	}
}

func (r *Resend) GetName() string { return "resend" }

// Send delivers a message via the Resend emails API.
func (r *Resend) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	resp, err := r.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTMLBody,
		Text:    msg.TextBody,
		Headers: msg.Headers,
	})
	if err != nil {
		msg := err.Error()
		return nil, &ProviderError{
			Provider:  "resend",
			Message:   msg,
			Permanent: containsAny(msg, recipientRejections) || containsAny(msg, accountFailures),
		}
	}

	return &DeliveryResult{
		ProviderMessageID: resp.Id,
		Status:            StatusSent,
		Timestamp:         time.Now(),
	}, nil
}

// HealthCheck only verifies that credentials are configured; Resend has no
// side-effect-free ping endpoint for sending keys.
func (r *Resend) HealthCheck(_ context.Context) error {
	if r.apiKey == "" {
		return errors.New("resend: api key not configured")
	}
	return nil
}
