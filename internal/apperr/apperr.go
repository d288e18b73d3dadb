package apperr

import (
	"errors"
	"fmt"
)

// Sentinel categories. Call sites wrap these with fmt.Errorf("%w: ...") and
// handlers map them to HTTP statuses with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrProvider     = errors.New("provider_error")
	ErrPersistence  = errors.New("persistence_error")
)

func InvalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

func NotFound(msg string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, msg)
}

func Provider(err error) error {
	return fmt.Errorf("%w: %v", ErrProvider, err)
}

func Persistence(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

// Code returns the wire code for an error, defaulting to internal_error for
// anything outside the taxonomy.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrProvider):
		return "provider_error"
	case errors.Is(err, ErrPersistence):
		return "persistence_error"
	default:
		return "internal_error"
	}
}
