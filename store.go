package scatter

import "context"

// Store is the target key-value/range-partitioned store boundary. The core
// is agnostic to the concrete transport; see the boltstore and pgstore
// subpackages for ready-made adapters.
//
// Apply must upsert every record keyed by its transformed primary key:
// insert-or-replace, so that re-applying an already-committed batch is a
// no-op rather than a duplicate row or constraint violation. That property
// is what makes retry after a partial commit safe.
//
// The two failure channels are distinct:
//
//   - The returned error reports that the batch as a whole could not be
//     committed. Wrap it with Transient when the condition is retryable
//     (timeout, throttling); the write executor retries transient errors
//     with backoff and treats everything else as permanent.
//   - The returned slice reports per-record permanent failures (a record
//     the store cannot represent). The remaining records must still be
//     committed; these are never retried.
//
// A Store is shared by all worker lanes concurrently and must be safe for
// concurrent Apply calls.
type Store interface {
	Apply(ctx context.Context, records []Record) ([]RecordError, error)
}
