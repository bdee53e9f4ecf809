// Package idempotency scopes publish requests by caller-supplied keys so a
// retried request replays the first response instead of repeating its side
// effects.
package idempotency

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxKeyLength is the longest accepted key, in characters.
const MaxKeyLength = 50

// ErrInvalidKey is returned for keys that are empty or too long.
var ErrInvalidKey = errors.New("invalid idempotency key")

// Key is an opaque, validated idempotency key.
type Key string

// ParseKey validates s as an idempotency key.
func ParseKey(s string) (Key, error) {
	if s == "" {
		return "", fmt.Errorf("%w: must not be empty", ErrInvalidKey)
	}
	if n := utf8.RuneCountInString(s); n > MaxKeyLength {
		return "", fmt.Errorf("%w: %d characters, at most %d allowed", ErrInvalidKey, n, MaxKeyLength)
	}
	return Key(s), nil
}

func (k Key) String() string { return string(k) }
