package services

import (
	"errors"
	"fmt"

	"github.com/HSouheill/travel_booking_backend/repositories"
)

// Error kinds. Controllers map them to HTTP status codes.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation failed")
	ErrTooManyAttempts   = errors.New("too many attempts")
	ErrUnavailable       = errors.New("unavailable")
)

// Error carries a client facing message and one of the kinds above.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// notFound converts a repository miss into ErrNotFound with msg.
func notFound(err error, msg string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return newError(ErrNotFound, "%s", msg)
	}
	return err
}
