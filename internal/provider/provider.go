package provider

import (
	"context"
	"time"
)

// Provider defines the interface for sending email through a transport.
type Provider interface {
	// Send delivers a message and returns a delivery result. Any error is
	// treated as transient by the delivery worker.
	Send(ctx context.Context, msg *Message) (*DeliveryResult, error)
	// GetName returns the provider's identifier (e.g., "sendgrid", "smtp").
	GetName() string
	// HealthCheck verifies the provider is reachable and functional.
	HealthCheck(ctx context.Context) error
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest represents an outgoing HTTP request.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse represents an HTTP response from a provider API.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Message is one newsletter email addressed to a single subscriber.
type Message struct {
	// ID identifies the delivery task, "<issue-id>/<subscriber>".
	ID       string
	From     string
	To       string
	Subject  string
	TextBody string
	HTMLBody string
	Headers  map[string]string
}

// DeliveryResult contains the outcome of a delivery attempt.
type DeliveryResult struct {
	ProviderMessageID string
	Status            DeliveryStatus
	Timestamp         time.Time
	Metadata          map[string]string
}

// DeliveryStatus represents the outcome of a delivery.
type DeliveryStatus string

const (
	StatusSent    DeliveryStatus = "sent"
	StatusFailed  DeliveryStatus = "failed"
	StatusBounced DeliveryStatus = "bounced"
)
