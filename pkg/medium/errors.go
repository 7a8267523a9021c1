package medium

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyAdvertising is returned when StartAdvertising is called with
	// a different record while one is already being advertised. The running
	// registration is left untouched.
	ErrAlreadyAdvertising = errors.New("medium is already advertising")

	// ErrAlreadyBound is returned by ListenForService when the identifier is
	// already bound by this process.
	ErrAlreadyBound = errors.New("service identifier is already bound")

	// ErrCancelled is the connect failure produced when the caller's
	// cancellation token is set.
	ErrCancelled = errors.New("connect cancelled")

	// ErrMediumClosed is returned by every operation after the medium shuts
	// down.
	ErrMediumClosed = errors.New("medium is closed")
)

// InitiationError wraps a backend failure to start an operation. The caller
// may retry with backoff; the medium itself never retries.
type InitiationError struct {
	Op  string
	Err error
}

func (e *InitiationError) Error() string {
	return fmt.Sprintf("%s failed to start: %v", e.Op, e.Err)
}

func (e *InitiationError) Unwrap() error {
	return e.Err
}

// NewInitiationError wraps err as an initiation failure for op. Backends use
// it when a start operation cannot even be attempted.
func NewInitiationError(op string, err error) error {
	return &InitiationError{Op: op, Err: err}
}

func initiationFailure(op string, err error) error {
	return NewInitiationError(op, err)
}
