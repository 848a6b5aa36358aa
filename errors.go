package scatter

import (
	"errors"
	"fmt"
)

// ErrToleranceExceeded is reported by the coordinator when the aggregate
// per-record failure count exceeds Options.FailureTolerance.
var ErrToleranceExceeded = errors.New("scatter: failure tolerance exceeded")

// KeyRangeError reports a key that does not fit in the configured bit width.
// It is a permanent, per-record failure: the record never reaches the write
// stage and is never retried.
type KeyRangeError struct {
	Key   uint64
	Width uint
}

func (e *KeyRangeError) Error() string {
	return fmt.Sprintf("scatter: key %d out of range for %d-bit width", e.Key, e.Width)
}

// ValidationError reports a malformed record field, such as a missing or
// non-integer key column. Like KeyRangeError it is permanent and counted as
// a per-record failure without retry.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scatter: invalid field %q (value %q): %s", e.Field, e.Value, e.Reason)
}

// SourceError reports that the record source itself failed. It is fatal to
// the whole run: no key-space guarantee can be made without seeing all
// records, so the coordinator transitions to Failed and stops all lanes.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("scatter: source read failed: %v", e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// transientError marks a store error as retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// Transient wraps a store error to mark it retryable (timeout, throttling,
// resource exhaustion). The write executor retries transient errors with
// exponential backoff up to the attempt cap; anything else is treated as
// permanent. Returns nil if err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err (or anything it wraps) was marked with
// Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
