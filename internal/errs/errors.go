// Package errs defines the error kinds the service distinguishes between.
// Component failures are always wrapped into one of these before crossing
// a package boundary, so callers can branch with errors.Is without knowing
// which library produced the underlying error.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyContent = errors.New("empty content")
	ErrExtraction   = errors.New("extraction failed")
	ErrChunking     = errors.New("chunking failed")
	ErrEmbedding    = errors.New("embedding failed")
	ErrPersistence  = errors.New("persistence failed")

	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
)

// Wrap ties err to a kind while keeping both visible to errors.Is.
func Wrap(kind error, err error) error {
	if err == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Wrapf is Wrap with a formatted message instead of an underlying error.
func Wrapf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// transientError marks a failure worth retrying (rate limits, 5xx, timeouts).
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err (or anything it wraps) was marked transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
