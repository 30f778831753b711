package models

import (
	"errors"
	"strings"
)

// ErrMissingID is returned when a bill arrives without an id.
var ErrMissingID = errors.New("bill id is required")

// ValidationError reports a request that was rejected before reaching the
// store. It is never retried.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid bill: " + e.Err.Error()
	}
	return "invalid bill: " + e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks the only invariant the agent enforces on incoming bills:
// a non-blank id.
func (b *Bill) Validate() error {
	if b == nil || strings.TrimSpace(b.ID) == "" {
		return &ValidationError{Field: "id", Err: ErrMissingID}
	}
	return nil
}
