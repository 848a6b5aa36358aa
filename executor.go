package scatter

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WriteExecutor commits batches to a Store, tolerating transient failures.
//
// Transient store errors (see Transient) are retried with exponential
// backoff: the delay starts at RetryBaseDelay, doubles each attempt, and is
// capped at RetryMaxDelay, with up to MaxRetryAttempts total tries. Backoff
// sleeps respect the write context, so a drain deadline cuts retries short.
//
// Permanent errors, whether a whole-batch failure the store did not mark
// transient or per-record failures reported by the store, are recorded in
// the WriteResult and never retried.
//
// Safe for concurrent use by multiple lanes; the executor itself holds no
// mutable state.
type WriteExecutor struct {
	store       Store
	primaryKey  string
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewWriteExecutor returns an executor over store configured from opts
// (MaxRetryAttempts, RetryBaseDelay, RetryMaxDelay, PrimaryKey; defaults
// apply to zero values).
func NewWriteExecutor(store Store, opts Options) *WriteExecutor {
	opts = opts.withDefaults()
	return &WriteExecutor{
		store:       store,
		primaryKey:  opts.PrimaryKey,
		maxAttempts: opts.MaxRetryAttempts,
		baseDelay:   opts.RetryBaseDelay,
		maxDelay:    opts.RetryMaxDelay,
	}
}

// Write commits one batch and reports the outcome. It never returns a
// partial or streaming result: exactly one WriteResult per batch.
//
// Retrying relies on the store's upsert semantics: a batch that partially
// committed before a transient failure is simply re-applied in full, and the
// already-committed records converge to the same state.
func (e *WriteExecutor) Write(ctx context.Context, batch Batch) WriteResult {
	var recordErrs []RecordError

	op := func() error {
		errs, err := e.store.Apply(ctx, batch.Records)
		if err != nil {
			if IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		recordErrs = errs
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.baseDelay
	bo.MaxInterval = e.maxDelay
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // bounded by attempt count, not wall time

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(e.maxAttempts-1)), ctx))
	if err != nil {
		// The batch as a whole never committed: every record failed.
		res := WriteResult{Failed: len(batch.Records)}
		res.Errors = make([]RecordError, 0, len(batch.Records))
		for _, rec := range batch.Records {
			res.Errors = append(res.Errors, RecordError{
				Key: rec.Keys[e.primaryKey],
				Err: fmt.Errorf("batch %d: %w", batch.Seq, err),
			})
		}
		return res
	}

	return WriteResult{
		Written: len(batch.Records) - len(recordErrs),
		Failed:  len(recordErrs),
		Errors:  recordErrs,
	}
}
