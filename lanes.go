package scatter

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// execute runs the reader and the worker lanes until the source is drained
// or a fatal error occurs.
func (c *Coordinator) execute(ctx, drainCtx context.Context) error {
	// The errgroup runs on drainCtx so lanes can keep committing in-flight
	// batches after the parent context is cancelled.
	group, groupCtx := errgroup.WithContext(drainCtx)

	feed := make(chan Record, c.opts.MaxConcurrency)

	group.Go(func() error {
		return c.runReader(ctx, groupCtx, feed)
	})

	for range c.opts.MaxConcurrency {
		group.Go(func() error {
			return c.runLane(ctx, groupCtx, feed)
		})
	}

	return group.Wait()
}

// runReader pulls records from the source and feeds the lanes. ctx is the
// parent context (cancellation stops extraction); drainCtx is used for
// channel sends so records already pulled can still reach a lane during
// drain.
//
// Per-record validation errors yielded by the source are counted and
// skipped. Any other source error is fatal: the run cannot guarantee the
// key-space was fully seen, so it fails as a whole.
func (c *Coordinator) runReader(ctx, drainCtx context.Context, out chan<- Record) error {
	defer close(out)

	for rec, err := range c.source.Records(ctx) {
		select {
		case <-ctx.Done():
			return nil // stop extracting, let lanes drain
		default:
		}

		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				c.stats.incFailed(1)
				c.sampleFailure(RecordError{Err: err})
				continue
			}
			// The flag is set before the deferred close of the feed channel,
			// so a lane that sees end-of-stream already knows the run failed
			// and starts no new batch.
			c.srcFailed.Store(true)
			var serr *SourceError
			if errors.As(err, &serr) {
				return err
			}
			return &SourceError{Err: err}
		}

		c.stats.incRead(1)

		select {
		case out <- rec:
		case <-drainCtx.Done():
			return context.Cause(drainCtx)
		}
	}

	return nil
}

// runLane is one worker lane: transform, batch, commit, in arrival order.
// Records within a lane are batched and written in the order received;
// no ordering holds across lanes.
func (c *Coordinator) runLane(ctx, drainCtx context.Context, in <-chan Record) error {
	batcher := NewRecordBatcher(c.opts.BatchSize)
	batcher.nextSeq = func() uint64 { return c.batchSeq.Add(1) }

	for {
		select {
		case <-drainCtx.Done():
			return context.Cause(drainCtx)
		case rec, ok := <-in:
			if !ok {
				// End of stream. Flush the partial batch unless shutdown was
				// requested or the source failed: neither starts new batches.
				if batch, pending := batcher.Flush(); pending && ctx.Err() == nil && !c.srcFailed.Load() {
					c.commit(drainCtx, batch)
				}
				return nil
			}

			scattered, recErr := c.transformRecord(rec)
			if recErr != nil {
				c.stats.incFailed(1)
				c.sampleFailure(*recErr)
				continue
			}
			c.stats.incTransformed(1)

			if batch, full := batcher.Add(scattered); full {
				c.commit(drainCtx, batch)
			}
		}
	}
}

// transformRecord validates the record and scatters every key field. The
// input is cloned first: records are handed off by copy at stage
// boundaries, so the source's map is never mutated.
func (c *Coordinator) transformRecord(rec Record) (Record, *RecordError) {
	raw, ok := rec.Keys[c.opts.PrimaryKey]
	if !ok {
		return Record{}, &RecordError{Err: &ValidationError{
			Field:  c.opts.PrimaryKey,
			Reason: "missing primary key field",
		}}
	}

	out := rec.Clone()
	for name, key := range out.Keys {
		scattered, err := c.codec.Transform(key)
		if err != nil {
			return Record{}, &RecordError{Key: raw, Err: err}
		}
		out.Keys[name] = scattered
	}

	return out, nil
}

// commit writes one batch and folds the result into the run counters.
// Per-record failures never abort the lane; only the counters and samples
// record them.
func (c *Coordinator) commit(ctx context.Context, batch Batch) {
	res := c.executor.Write(ctx, batch)

	c.stats.incBatches(1)
	if res.Failed > 0 {
		c.stats.incFailed(int64(res.Failed))
		for _, re := range res.Errors {
			c.sampleFailure(re)
		}
	}

	if res.Written == 0 {
		return
	}

	// incWritten returns the updated total, so each interval crossing is
	// observed by exactly one lane.
	newWritten := c.stats.incWritten(int64(res.Written))
	prevWritten := newWritten - int64(res.Written)

	if c.opts.OnProgress != nil && newWritten/c.opts.ReportInterval > prevWritten/c.opts.ReportInterval {
		c.opts.OnProgress(ctx, &c.stats)
	}
}
