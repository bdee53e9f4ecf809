package provider

import (
	"fmt"
)

// NewProvider creates a provider instance from the given config. client is
// used by the HTTP-based providers and may be nil for the others.
func NewProvider(cfg ProviderConfig, client HTTPClient) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}
	if client == nil {
		client = NewHTTPClient(cfg.Timeout)
	}

	switch cfg.Type {
	case "sendgrid":
		return NewSendGrid(cfg, client), nil
	case "ses":
		return NewSES(cfg, client), nil
	case "mailgun":
		return NewMailgun(cfg, client), nil
	case "resend":
		return NewResend(cfg), nil
	case "smtp":
		return NewSMTP(cfg), nil
	case "stdout":
		return NewStdout(cfg), nil
	case "file":
		return NewFile(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
}
