package provider

import (
	"errors"
	"time"
)

// ProviderConfig holds configuration for an email transport.
type ProviderConfig struct {
	// Type identifies the provider: "sendgrid", "ses", "mailgun", "resend",
	// "smtp", "stdout", "file".
	Type string

	// APIKey is the authentication credential for HTTP providers.
	APIKey string

	// Endpoint overrides the default API URL (useful for testing).
	Endpoint string

	// Timeout is the maximum duration for API calls.
	Timeout time.Duration

	// Region is used for AWS SES to determine the API endpoint.
	Region string

	// Domain is the Mailgun sending domain.
	Domain string

	// OutputDir is where the file provider writes messages.
	OutputDir string

	// SMTP relay settings for the smtp provider.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

const defaultTimeout = 30 * time.Second

// Validate checks that required fields are set based on provider type.
func (c *ProviderConfig) Validate() error {
	if c.Type == "" {
		return errors.New("provider type is required")
	}

	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}

	switch c.Type {
	case "sendgrid":
		if c.APIKey == "" {
			return errors.New("sendgrid: api_key is required")
		}
	case "ses":
		if c.Region == "" {
			return errors.New("ses: region is required")
		}
		if c.APIKey == "" {
			return errors.New("ses: api_key (access key ID) is required")
		}
	case "mailgun":
		if c.APIKey == "" {
			return errors.New("mailgun: api_key is required")
		}
		if c.Domain == "" {
			return errors.New("mailgun: domain is required")
		}
	case "resend":
		if c.APIKey == "" {
			return errors.New("resend: api_key is required")
		}
	case "smtp":
		if c.SMTPHost == "" {
			return errors.New("smtp: host is required")
		}
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			return errors.New("smtp: port must be between 1 and 65535")
		}
		if (c.SMTPUsername == "") != (c.SMTPPassword == "") {
			return errors.New("smtp: username and password must be set together")
		}
	case "stdout":
		// No configuration required.
	case "file":
		// OutputDir is optional (defaults to ./mail_output).
	default:
		return errors.New("unknown provider type: " + c.Type)
	}

	return nil
}
