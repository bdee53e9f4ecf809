package provider

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestStdout_Send(t *testing.T) {
	var buf bytes.Buffer
	s := &Stdout{writer: &buf}

	result, err := s.Send(context.Background(), &Message{
		ID:       "issue-1/a@example.com",
		From:     "news@example.com",
		To:       "a@example.com",
		Subject:  "Weekly",
		TextBody: "hello",
		HTMLBody: "<p>hello</p>",
		Headers:  map[string]string{"X-B": "2", "X-A": "1"},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if result.Status != StatusSent {
		t.Errorf("expected status sent, got %s", result.Status)
	}
	if result.ProviderMessageID != "stdout-issue-1/a@example.com" {
		t.Errorf("unexpected message id %s", result.ProviderMessageID)
	}

	out := buf.String()
	for _, want := range []string{"To:      a@example.com", "Subject: Weekly", "Text:    (5 bytes)", "HTML:    (12 bytes)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Index(out, "X-A") > strings.Index(out, "X-B") {
		t.Error("expected headers printed in sorted order")
	}
}

func TestStdout_GetNameAndHealth(t *testing.T) {
	s := NewStdout(ProviderConfig{})
	if s.GetName() != "stdout" {
		t.Errorf("expected stdout, got %s", s.GetName())
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}
}
