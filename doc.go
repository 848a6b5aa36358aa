// Package scatter redistributes monotonically-increasing integer keys
// before bulk-loading them into a range-partitioned store.
//
// Sequential primary keys concentrate writes on a single partition
// ("hotspotting"), throttling ingest throughput. scatter applies a
// fixed-width bit-order reversal to each designated key field: the
// fast-changing low bits of a dense sequential run become the high,
// partition-routing bits, spreading writes approximately uniformly across
// the key space. The transform is a deterministic, collision-free bijection
// and its own inverse, so original keys are always recoverable.
//
// # Quick Start
//
// Provide a record source and a store, then run the coordinator:
//
//	src := csvsource.New("owners.csv", "OwnerID")
//
//	store, err := boltstore.Open("owners.db", "OwnerID")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	coord, err := scatter.New(src, store, scatter.Options{
//	    KeyWidth:       32,
//	    PrimaryKey:     "OwnerID",
//	    BatchSize:      500,
//	    MaxConcurrency: 8,
//	})
//	if err != nil {
//	    return err
//	}
//
//	summary, err := coord.Run(ctx)
//
// The coordinator fans records out to MaxConcurrency worker lanes. Each
// lane scatters key fields through the Codec, accumulates batches with its
// own RecordBatcher, and commits them through a WriteExecutor that retries
// transient store errors with capped exponential backoff.
//
// # Key Width
//
// KeyWidth fixes the domain of the permutation: every key must satisfy
// 0 <= key < 2^W. A key outside the domain is a validation error counted
// against the run, never a silent truncation; clamping would break the
// bijection. Pick the width to match the store's key column; it is
// configuration, not a constant, because 32 bits is often too small for
// real identifier spaces.
//
// # Failure Handling
//
// Per-record failures (out-of-range keys, malformed fields, records a
// store rejects permanently) are counted and sampled but never abort
// sibling lanes; the run completes and reports them in the Summary. The
// run fails as a whole only when the source itself cannot be read, when
// the context is cancelled, or when per-record failures exceed
// Options.FailureTolerance. Committed batches are never rolled back:
// stores upsert by the transformed primary key, so re-running a failed
// load (or retrying a partially-committed batch) converges instead of
// duplicating rows.
//
// # Custom Sources and Stores
//
// Implement Source to ingest from anywhere:
//
//	func (s *rowSource) Records(ctx context.Context) iter.Seq2[scatter.Record, error] {
//	    return func(yield func(scatter.Record, error) bool) {
//	        for rows.Next() {
//	            ...
//	            if !yield(rec, nil) {
//	                return
//	            }
//	        }
//	    }
//	}
//
// Implement Store to commit anywhere. Apply must upsert by the transformed
// primary key and wrap retryable errors with Transient:
//
//	func (s *kvStore) Apply(ctx context.Context, recs []scatter.Record) ([]scatter.RecordError, error) {
//	    if err := s.client.BulkPut(ctx, encode(recs)); err != nil {
//	        if isThrottle(err) {
//	            return nil, scatter.Transient(err)
//	        }
//	        return nil, err
//	    }
//	    return nil, nil
//	}
//
// Ready-made adapters live in the boltstore, pgstore, and csvsource
// subpackages.
package scatter
