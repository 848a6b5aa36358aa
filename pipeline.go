package scatter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the coordinator lifecycle: Idle until Run is called, Running
// while lanes are active, then Completed or Failed.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Coordinator drives the end-to-end flow: a reader goroutine pulls records
// from the Source and fans them out to MaxConcurrency worker lanes, each of
// which scatters key fields through the codec, accumulates its own batches,
// and commits them through a shared WriteExecutor. Lanes share no mutable
// state beyond the atomic Stats counters and the bounded failure-sample
// list.
//
// A Coordinator runs at most once. Construct a new one per run.
type Coordinator struct {
	opts     Options
	codec    Codec
	source   Source
	executor *WriteExecutor

	state     atomic.Int32
	stats     Stats
	batchSeq  atomic.Uint64
	srcFailed atomic.Bool

	mu      sync.Mutex
	samples []RecordError
}

// Summary is the operator-facing outcome of a run: enough to diagnose
// failures and re-run just the failed subset. FailureSamples holds at most
// Options.FailureSampleLimit entries; the Stats counters are always exact.
type Summary struct {
	RunID          uuid.UUID
	State          State
	Stats          *Stats
	Elapsed        time.Duration
	FailureSamples []RecordError
	Err            error
}

// New creates a Coordinator reading from source and writing to store.
// Zero-valued Options fields take their defaults.
func New(source Source, store Store, opts Options) (*Coordinator, error) {
	if source == nil {
		return nil, errors.New("scatter: source is required")
	}
	if store == nil {
		return nil, errors.New("scatter: store is required")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	codec, err := NewCodec(opts.KeyWidth)
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		opts:     opts,
		codec:    codec,
		source:   source,
		executor: NewWriteExecutor(store, opts),
	}, nil
}

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// Stats returns the live run counters. Safe to read concurrently with Run.
func (c *Coordinator) Stats() *Stats { return &c.stats }

// Run executes the ingest and blocks until it completes, fails, or is
// cancelled. The returned Summary is always non-nil; the error is non-nil
// exactly when the final state is Failed.
//
// Cancellation is cooperative: on ctx cancellation the reader stops pulling
// records and no new batches are started, but batches already being
// committed are allowed to finish (bounded by Options.DrainTimeout) so a
// partially-applied write is never abandoned mid-retry. A cancelled run
// reports Failed with the cancellation cause. Committed batches are never
// rolled back.
func (c *Coordinator) Run(ctx context.Context) (*Summary, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, fmt.Errorf("scatter: coordinator already ran (state %s)", c.State())
	}

	runID := uuid.New()
	started := time.Now()
	log := c.opts.Logger.With("run_id", runID.String())
	log.Info("scatter run starting",
		"key_width", c.opts.KeyWidth,
		"lanes", c.opts.MaxConcurrency,
		"batch_size", c.opts.BatchSize,
	)

	drainCtx, shutdownComplete := c.setupDrainContext(ctx)
	defer close(shutdownComplete)

	runErr := c.execute(ctx, drainCtx)

	var err error
	switch {
	case runErr != nil && ctx.Err() != nil:
		err = fmt.Errorf("scatter: run cancelled: %w", runErr)
	case runErr != nil:
		err = runErr
	case ctx.Err() != nil:
		err = fmt.Errorf("scatter: run cancelled: %w", context.Cause(ctx))
	case c.stats.Failed() > c.opts.FailureTolerance:
		err = fmt.Errorf("%w: %d record(s) failed, tolerance %d",
			ErrToleranceExceeded, c.stats.Failed(), c.opts.FailureTolerance)
	}

	final := StateCompleted
	if err != nil {
		final = StateFailed
	}
	c.state.Store(int32(final))

	summary := &Summary{
		RunID:          runID,
		State:          final,
		Stats:          &c.stats,
		Elapsed:        time.Since(started),
		FailureSamples: c.failureSamples(),
		Err:            err,
	}

	if err != nil {
		log.Error("scatter run failed", "error", err, "stats", &c.stats, "elapsed", summary.Elapsed)
	} else {
		log.Info("scatter run complete", "stats", &c.stats, "elapsed", summary.Elapsed)
	}

	return summary, err
}

// sampleFailure records a per-record failure detail, keeping at most
// FailureSampleLimit entries. Counters track the true totals.
func (c *Coordinator) sampleFailure(re RecordError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.samples) < c.opts.FailureSampleLimit {
		c.samples = append(c.samples, re)
	}
}

func (c *Coordinator) failureSamples() []RecordError {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RecordError, len(c.samples))
	copy(out, c.samples)
	return out
}

// setupDrainContext creates the context used by in-flight work after the
// parent is cancelled:
//   - parent ctx cancelled means "stop pulling records, start no new batches"
//   - drainCtx stays live for up to DrainTimeout so commits in progress can
//     finish instead of abandoning a partially-applied write mid-retry
func (c *Coordinator) setupDrainContext(ctx context.Context) (context.Context, chan struct{}) {
	drainCtx, drainCancel := context.WithCancelCause(context.WithoutCancel(ctx))
	shutdownComplete := make(chan struct{})

	if c.opts.DrainTimeout > 0 {
		go c.runDrainTimer(ctx, c.opts.DrainTimeout, drainCancel, shutdownComplete)
	} else {
		go c.mirrorContextCancel(ctx, drainCancel, shutdownComplete)
	}

	return drainCtx, shutdownComplete
}

// runDrainTimer starts a timer when the parent context is cancelled and
// cancels the drain context when it expires.
func (c *Coordinator) runDrainTimer(ctx context.Context, timeout time.Duration, cancel context.CancelCauseFunc, done <-chan struct{}) {
	select {
	case <-ctx.Done():
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel(fmt.Errorf("drain timeout expired after %v", timeout))
		case <-done:
			cancel(nil)
		}
	case <-done:
		cancel(nil)
	}
}

// mirrorContextCancel cancels the drain context as soon as the parent is
// cancelled (draining disabled).
func (c *Coordinator) mirrorContextCancel(ctx context.Context, cancel context.CancelCauseFunc, done <-chan struct{}) {
	select {
	case <-ctx.Done():
		cancel(ctx.Err())
	case <-done:
		cancel(nil)
	}
}
