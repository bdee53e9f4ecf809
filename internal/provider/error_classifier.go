package provider

import (
	"errors"
	"strings"
)

// ProviderError wraps a transport error with classification metadata.
type ProviderError struct {
	// Provider is the name of the ESP that returned the error.
	Provider string
	// StatusCode is the HTTP status or SMTP reply code.
	StatusCode int
	// Message is the error description from the ESP API.
	Message string
	// Permanent indicates the error will not succeed on retry.
	Permanent bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Message
}

// IsPermanent returns true if the provider reported a failure that will not
// succeed on retry. The delivery worker still retries it; the classification
// only feeds logs and metrics.
func IsPermanent(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Permanent
	}
	return false
}

// IsTransient returns true if the error is a temporary failure that may
// succeed on retry.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return !pe.Permanent
	}
	// Unknown errors are treated as transient to avoid data loss.
	return true
}

// ClassifyHTTPError labels a non-2xx ESP response. It returns nil for 2xx.
func ClassifyHTTPError(providerName string, statusCode int, body string) *ProviderError {
	pe := &ProviderError{
		Provider:   providerName,
		StatusCode: statusCode,
		Message:    body,
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		// Not an error.
		return nil

	case statusCode == 400:
		pe.Permanent = containsAny(body, recipientRejections)

	case statusCode == 401, statusCode == 403, statusCode == 404:
		pe.Permanent = true

	case statusCode == 408, statusCode == 429:
		pe.Permanent = false

	case statusCode >= 500:
		pe.Permanent = containsAny(body, accountFailures)

	default:
		// Other 4xx codes are treated as permanent.
		pe.Permanent = statusCode >= 400 && statusCode < 500
	}

	return pe
}

// Phrases ESPs use for failures that no retry will fix. Matching is
// case-insensitive on the response body.
var (
	recipientRejections = []string{
		"invalid recipient",
		"invalid email",
		"invalid address",
		"does not exist",
		"mailbox not found",
		"mailbox unavailable",
		"recipient rejected",
		"bad request",
		"validation error",
	}
	accountFailures = []string{
		"invalid api key",
		"authentication failed",
		"account suspended",
		"account disabled",
		"unauthorized",
	}
)

func containsAny(body string, patterns []string) bool {
	lower := strings.ToLower(body)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Class returns "permanent" or "transient" for metric labels.
func Class(err error) string {
	if IsPermanent(err) {
		return "permanent"
	}
	return "transient"
}
