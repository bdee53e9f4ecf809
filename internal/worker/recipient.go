package worker

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ErrInvalidRecipient marks a stored subscriber address that can never be
// delivered. Tasks failing with it are disabled instead of retried.
var ErrInvalidRecipient = errors.New("invalid recipient address")

// ValidateRecipient accepts a bare address ("user@example.com") whose domain
// contains at least one dot. Display names and angle brackets are rejected.
func ValidateRecipient(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidRecipient, email, err)
	}
	if addr.Name != "" || addr.Address != email {
		return fmt.Errorf("%w %q: not a bare address", ErrInvalidRecipient, email)
	}

	domain := email[strings.LastIndex(email, "@")+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return fmt.Errorf("%w %q: domain %q is not fully qualified", ErrInvalidRecipient, email, domain)
	}
	return nil
}
