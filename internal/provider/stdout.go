package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stdout implements the Provider interface by writing messages to standard output.
// Intended for development; messages are never actually delivered.
type Stdout struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewStdout creates a Stdout provider that prints messages to os.Stdout.
func NewStdout(_ ProviderConfig) *Stdout {
	return &Stdout{writer: os.Stdout}
}

func (s *Stdout) GetName() string { return "stdout" }

// Send prints the message summary and returns a successful result. Worker
// loops share one provider, so writes are serialized.
func (s *Stdout) Send(_ context.Context, msg *Message) (*DeliveryResult, error) {
	var b strings.Builder
	b.WriteString("--- stdout provider: newsletter ---\n")
	fmt.Fprintf(&b, "ID:      %s\n", msg.ID)
	fmt.Fprintf(&b, "From:    %s\n", msg.From)
	fmt.Fprintf(&b, "To:      %s\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	for _, k := range sortedKeys(msg.Headers) {
		fmt.Fprintf(&b, "Header:  %s: %s\n", k, msg.Headers[k])
	}
	fmt.Fprintf(&b, "Text:    (%d bytes)\n", len(msg.TextBody))
	fmt.Fprintf(&b, "HTML:    (%d bytes)\n", len(msg.HTMLBody))
	b.WriteString("--- end ---\n")

	s.mu.Lock()
	_, err := io.WriteString(s.writer, b.String())
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("stdout: write: %w", err)
	}

	return &DeliveryResult{
		ProviderMessageID: "stdout-" + msg.ID,
		Status:            StatusSent,
		Timestamp:         time.Now(),
	}, nil
}

// HealthCheck always returns nil since stdout is always available.
func (s *Stdout) HealthCheck(_ context.Context) error {
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
