package provider

import (
	"context"
	"net/url"
	"testing"
)

func TestMailgun_buildForm(t *testing.T) {
	mg := &Mailgun{}
	form := mg.buildForm(&Message{
		From:     "news@example.com",
		To:       "a@example.com",
		Subject:  "Issue",
		TextBody: "plain",
		HTMLBody: "<b>rich</b>",
		Headers:  map[string]string{"X-Newsletter-Issue": "abc"},
	})

	checks := map[string]string{
		"from":                 "news@example.com",
		"to":                   "a@example.com",
		"subject":              "Issue",
		"text":                 "plain",
		"html":                 "<b>rich</b>",
		"h:X-Newsletter-Issue": "abc",
	}
	for k, want := range checks {
		if got := form.Get(k); got != want {
			t.Errorf("form[%s] = %q, want %q", k, got, want)
		}
	}
}

func TestMailgun_buildForm_OmitsEmptyBodies(t *testing.T) {
	form := (&Mailgun{}).buildForm(&Message{To: "a@example.com", TextBody: "only text"})
	if _, ok := form["html"]; ok {
		t.Error("expected no html field for text-only message")
	}
}

func TestMailgun_Send(t *testing.T) {
	var captured *HTTPRequest
	client := &mockHTTPClient{doFn: func(req *HTTPRequest) (*HTTPResponse, error) {
		captured = req
		return &HTTPResponse{StatusCode: 200, Body: []byte(`{"id":"<mg-1@mg.example.com>","message":"Queued. Thank you."}`)}, nil
	}}
	mg := NewMailgun(ProviderConfig{APIKey: "key", Domain: "mg.example.com", Endpoint: "http://mailgun.test"}, client)

	result, err := mg.Send(context.Background(), &Message{From: "f@example.com", To: "a@example.com", TextBody: "hi"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if result.ProviderMessageID != "<mg-1@mg.example.com>" {
		t.Errorf("unexpected message id %s", result.ProviderMessageID)
	}
	if captured.URL != "http://mailgun.test/v3/mg.example.com/messages" {
		t.Errorf("unexpected URL %s", captured.URL)
	}
	if captured.Headers["Content-Type"] != "application/x-www-form-urlencoded" {
		t.Errorf("expected form content type, got %s", captured.Headers["Content-Type"])
	}
	values, err := url.ParseQuery(string(captured.Body))
	if err != nil {
		t.Fatalf("body is not a form: %v", err)
	}
	if values.Get("to") != "a@example.com" {
		t.Errorf("expected to=a@example.com, got %s", values.Get("to"))
	}
}

func TestMailgun_Send_PermanentError(t *testing.T) {
	client := &mockHTTPClient{doFn: func(req *HTTPRequest) (*HTTPResponse, error) {
		return &HTTPResponse{StatusCode: 401, Body: []byte("Forbidden")}, nil
	}}
	mg := NewMailgun(ProviderConfig{APIKey: "key", Domain: "mg.example.com"}, client)

	_, err := mg.Send(context.Background(), &Message{To: "a@example.com"})
	if !IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
}
