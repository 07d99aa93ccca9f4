package task

import (
	"fmt"
	"strings"
)

// AmbiguousRequestError means an extraction task could not determine the
// fields a pipeline needs to proceed. Terminal for the run and user-facing.
type AmbiguousRequestError struct {
	Missing []string
}

func (e *AmbiguousRequestError) Error() string {
	return fmt.Sprintf("request is ambiguous: could not determine %s", strings.Join(e.Missing, ", "))
}

// SchemaMismatchError means a capability produced output that does not
// conform to the requested schema. Terminal for the task after the
// capability's single in-client retry.
type SchemaMismatchError struct {
	Detail string
	Err    error
}

func (e *SchemaMismatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("output does not match requested schema: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("output does not match requested schema: %s", e.Detail)
}

func (e *SchemaMismatchError) Unwrap() error {
	return e.Err
}

// PersistenceError means a ledger write failed. Terminal for the affected
// upsert only; already-produced results must survive it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
