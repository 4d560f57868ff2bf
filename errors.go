package sheetstore

import (
	"errors"
	"fmt"
	"strings"
)

// UnknownTableError indicates an operation against a table that was never
// registered. This is a programmer error and is never retried.
type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("unknown table %q", e.Table)
}

// ValidationError carries the full list of rule violations for a record so
// callers can surface them all at once instead of one per round trip.
type ValidationError struct {
	Table    string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for table %q: %s", e.Table, strings.Join(e.Problems, "; "))
}

// RemoteError wraps a failure from the backing spreadsheet service, annotated
// with whether the retry policy may attempt the call again.
type RemoteError struct {
	Op        string // transport primitive, e.g. "append" or "delete row"
	Sheet     string
	Retryable bool
	Err       error
}

func (e *RemoteError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "transient"
	}
	return fmt.Sprintf("%s remote error during %s on %q: %v", kind, e.Op, e.Sheet, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient remote failure that the
// retry policy is allowed to attempt again.
func IsRetryable(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}
