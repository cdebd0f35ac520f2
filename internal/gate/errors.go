package gate

import (
	"errors"
	"fmt"
)

var (
	// ErrExhaustedRetries matches errors returned after every retry hit overload.
	ErrExhaustedRetries = errors.New("gate: retries exhausted")
	// ErrCallTimeout matches attempts that ran past the per-call timeout.
	ErrCallTimeout = errors.New("gate: upstream call timed out")
)

// ExhaustedError reports an operation that stayed overloaded through every attempt.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gate: retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes both the sentinel and the last upstream error.
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhaustedRetries, e.Err}
}

// Fatal returns an error with text msg that matches ErrFatal, so the default
// classifier never retries it.
func Fatal(msg string) error {
	return &fatalError{msg: msg}
}

type fatalError struct{ msg string }

func (e *fatalError) Error() string { return e.msg }

func (e *fatalError) Is(target error) bool { return target == ErrFatal }
