package engine

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by local mutations targeting an absent record.
// Remote event application never returns it; an absent target there is
// an idempotent no-op.
var ErrNotFound = errors.New("record not found")

// ErrInsufficientSelection is returned by MergeSelected when fewer than
// two ids are given.
var ErrInsufficientSelection = errors.New("merge requires at least 2 records")

// ValidationError reports a rejected mutation. The mutation had no
// effect on the canonical list or the store.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// PersistenceError reports a failed store write. The mutation that
// triggered it failed as a whole: the canonical in-memory list was not
// updated.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: persistence failed: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: persistence failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PartialBatchError reports a bulk operation where some items succeeded
// and some failed. The canonical list reflects only the succeeded
// subset; callers retry just Failed.
type PartialBatchError struct {
	Op        string
	Succeeded []string
	Failed    []string
	Errs      map[string]error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("%s: %d succeeded, %d failed", e.Op, len(e.Succeeded), len(e.Failed))
}
