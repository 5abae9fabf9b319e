package batch

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned by handles whose pass was cancelled before their window flushed.
var ErrCancelled = errors.New("batch cancelled")

// BatchFetchError is returned by every handle of a window whose fetch failed.
type BatchFetchError struct {
	Key     Key
	Parents int
	Err     error
}

func (e *BatchFetchError) Error() string {
	return fmt.Sprintf("batch fetch for %s (%d parents) failed: %v", e.Key.Relationship, e.Parents, e.Err)
}

func (e *BatchFetchError) Unwrap() error {
	return e.Err
}

// CardinalityViolationError records a single-valued relationship that matched
// several rows. It is reported as a warning; the first row is used.
type CardinalityViolationError struct {
	Key    Key
	Parent string
	Rows   int
}

func (e *CardinalityViolationError) Error() string {
	return fmt.Sprintf("relationship %s expected at most one row for parent (%s), got %d; using the first", e.Key.Relationship, e.Parent, e.Rows)
}
