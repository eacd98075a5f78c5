package searcher

import (
	"errors"
	"fmt"

	"github.com/roach88/loopexit/internal/ir"
)

// SearcherError reports a contract violation between the host engine and the
// searcher. These are never recovered internally.
//
// Benign desynchronization (removing an unknown state, adding a state twice)
// is not an error and never produces a SearcherError.
type SearcherError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// State is the handle involved, if any.
	State ir.StateID

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes searcher errors.
type ErrorCode string

const (
	// ErrCodeEmpty indicates SelectState was called with both pools empty.
	ErrCodeEmpty ErrorCode = "EMPTY"

	// ErrCodeDesync indicates the pools disagree with the searcher's own
	// bookkeeping (a state missing from the pool it should be in).
	ErrCodeDesync ErrorCode = "DESYNC"

	// ErrCodeInvalidConfig indicates a Config that fails validation.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Error implements the error interface.
func (e *SearcherError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.State.Valid() {
		msg = fmt.Sprintf("%s (state=%s)", msg, e.State)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *SearcherError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var se *SearcherError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsEmptyError returns true if err reports selection from an empty searcher.
func IsEmptyError(err error) bool {
	return hasCode(err, ErrCodeEmpty)
}

// IsDesyncError returns true if err reports pool desynchronization.
func IsDesyncError(err error) bool {
	return hasCode(err, ErrCodeDesync)
}

// IsConfigError returns true if err reports an invalid configuration.
func IsConfigError(err error) bool {
	return hasCode(err, ErrCodeInvalidConfig)
}

func newDesyncError(id ir.StateID, err error) *SearcherError {
	return &SearcherError{
		Code:    ErrCodeDesync,
		Message: "pool bookkeeping out of sync",
		State:   id,
		Err:     err,
	}
}

func newConfigError(format string, args ...any) *SearcherError {
	return &SearcherError{
		Code:    ErrCodeInvalidConfig,
		Message: fmt.Sprintf(format, args...),
	}
}
