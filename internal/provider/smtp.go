package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// SMTP implements the Provider interface by relaying through an upstream
// SMTP server.
type SMTP struct {
	addr    string
	auth    sasl.Client
	timeout time.Duration
}

// NewSMTP creates an SMTP provider. PLAIN auth is used when a username is set.
func NewSMTP(cfg ProviderConfig) *SMTP {
	s := &SMTP{
		addr:    net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort)),
		timeout: cfg.Timeout,
	}
	if cfg.SMTPUsername != "" {
		s.auth = sasl.NewPlainClient("", cfg.SMTPUsername, cfg.SMTPPassword)
	}
	if s.timeout == 0 {
		s.timeout = defaultTimeout
	}
	return s
}

func (s *SMTP) GetName() string { return "smtp" }

// Send opens one SMTP session per message.
func (s *SMTP) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	raw, err := composeMIME(msg, time.Now())
	if err != nil {
		return nil, fmt.Errorf("smtp: compose: %w", err)
	}

	c, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if s.auth != nil {
		if err := c.Auth(s.auth); err != nil {
			return nil, classifySMTPError(err)
		}
	}
	if err := c.SendMail(msg.From, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return nil, classifySMTPError(err)
	}
	_ = c.Quit()

	return &DeliveryResult{
		ProviderMessageID: msg.ID,
		Status:            StatusSent,
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"relay": s.addr},
	}, nil
}

// HealthCheck opens a session and issues NOOP.
func (s *SMTP) HealthCheck(ctx context.Context) error {
	c, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Noop(); err != nil {
		return fmt.Errorf("smtp: noop: %w", err)
	}
	return c.Quit()
}

func (s *SMTP) dial(ctx context.Context) (*gosmtp.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("smtp: dial %s: %w", s.addr, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp: set deadline: %w", err)
	}

	return gosmtp.NewClient(conn), nil
}

// classifySMTPError maps SMTP reply codes onto ProviderError: 5xx replies
// are permanent, everything else transient.
func classifySMTPError(err error) error {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		return &ProviderError{
			Provider:   "smtp",
			StatusCode: smtpErr.Code,
			Message:    smtpErr.Message,
			Permanent:  smtpErr.Code >= 500,
		}
	}
	return fmt.Errorf("smtp: %w", err)
}
