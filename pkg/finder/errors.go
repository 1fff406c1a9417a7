package finder

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks caller mistakes. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstreamUnavailable marks store or cache outages with no usable fallback.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Invalidf returns an error wrapping ErrInvalidInput.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, op, err)
}
