package storage

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors returned by repositories. Callers match with errors.Is.
var (
	// ErrNotFound reports an expected absence, e.g. an unknown issue id.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict reports a unique-key collision on insert.
	ErrConflict = errors.New("storage: conflict")
	// ErrUnexpected matches every *UnexpectedError.
	ErrUnexpected = errors.New("storage: unexpected error")
)

const uniqueViolation = "23505"

// UnexpectedError wraps a database failure that is neither an expected
// absence nor a constraint violation.
type UnexpectedError struct {
	Op  string
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

// Is reports true for ErrUnexpected so callers need not know the concrete type.
func (e *UnexpectedError) Is(target error) bool {
	return target == ErrUnexpected
}

func unexpected(op string, err error) error {
	return &UnexpectedError{Op: op, Err: err}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
