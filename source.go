package scatter

import (
	"context"
	"iter"
)

// Source supplies the records to ingest as a lazy, pull-based sequence. The
// sequence may be finite or unbounded and is not assumed restartable; a
// source that can re-read its input may document that separately.
//
// Per-record problems (a malformed row, a key that fails to parse) should be
// yielded as a *ValidationError alongside a zero Record; the coordinator
// counts them as permanent per-record failures and keeps going. Any other
// yielded error is treated as a fatal source failure and ends the run.
//
// The sequence must stop promptly once ctx is cancelled.
type Source interface {
	Records(ctx context.Context) iter.Seq2[Record, error]
}

// SliceSource adapts an in-memory slice of records to the Source interface.
// Useful for tests and small backfills.
type SliceSource []Record

func (s SliceSource) Records(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for _, rec := range s {
			if ctx.Err() != nil {
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}
