package multistates

import (
	"errors"
	"fmt"

	"github.com/roach88/loopexit/internal/ir"
)

// NotFoundError is returned when removing or reprioritizing a state the pool
// does not hold. It signals a host/searcher desynchronization, never a
// recoverable runtime condition.
type NotFoundError struct {
	Pool  string
	State ir.StateID
	Op    string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: state %s not in pool %q", e.Op, e.State, e.Pool)
}

// DuplicateError is returned when inserting a state the pool already holds.
type DuplicateError struct {
	Pool  string
	State ir.StateID
}

// Error implements the error interface.
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("insert: state %s already in pool %q", e.State, e.Pool)
}

// IsNotFound returns true if err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsDuplicate returns true if err is (or wraps) a DuplicateError.
func IsDuplicate(err error) bool {
	var de *DuplicateError
	return errors.As(err, &de)
}
