package scatter

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultKeyWidth           = 64
	DefaultPrimaryKey         = "id"
	DefaultBatchSize          = 500
	DefaultMaxConcurrency     = 4
	DefaultMaxRetryAttempts   = 5
	DefaultRetryBaseDelay     = 100 * time.Millisecond
	DefaultRetryMaxDelay      = 5 * time.Second
	DefaultFailureSampleLimit = 10
	DefaultReportInterval     = 10000
	DefaultDrainTimeout       = 5 * time.Minute
)

// Options configures a Coordinator. The struct is copied at construction and
// never read again from the caller's value, so a run's configuration is
// immutable once started. Zero values mean "use the default"; only
// DrainTimeout has a distinct disabled state (negative).
type Options struct {
	// KeyWidth is the bit width W of the key domain: every key field must
	// satisfy 0 <= key < 2^W. Must be in [1, 64]. Default 64.
	//
	// W is configuration, not a constant. Pick it to match the store's key
	// column; real identifier spaces routinely need more than 32 bits, and
	// the involution only holds for keys inside the configured domain.
	KeyWidth uint

	// PrimaryKey names the key field used as the store's upsert key.
	// A record missing this field is a validation failure. Default "id".
	PrimaryKey string

	// BatchSize is the maximum records per store write. Default 500.
	BatchSize int

	// MaxConcurrency is the number of worker lanes. Each lane transforms,
	// batches, and writes independently. Default 4.
	MaxConcurrency int

	// MaxRetryAttempts bounds total tries per batch write, including the
	// first. Default 5.
	MaxRetryAttempts int

	// RetryBaseDelay is the initial backoff delay, doubling each attempt.
	// Default 100ms.
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the backoff delay. Default 5s.
	RetryMaxDelay time.Duration

	// FailureTolerance is the number of per-record failures the run may
	// accumulate and still complete successfully. Default 0.
	FailureTolerance int64

	// FailureSampleLimit caps how many per-record failure details are kept
	// for the run summary. Counters are always exact; only the detail list
	// is bounded. Default 10.
	FailureSampleLimit int

	// DrainTimeout bounds how long in-flight batch writes may keep
	// committing after the run context is cancelled. Zero means the
	// default (5m); negative disables draining (in-flight writes are
	// aborted with the context).
	DrainTimeout time.Duration

	// ReportInterval is how often OnProgress fires, in records written.
	// Default 10000.
	ReportInterval int64

	// OnProgress, if set, is called each time the written count crosses a
	// ReportInterval boundary. It runs on a worker lane goroutine; avoid
	// blocking I/O.
	OnProgress func(ctx context.Context, stats *Stats)

	// Logger receives run lifecycle logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// withDefaults returns a copy of o with zero values replaced by defaults.
func (o Options) withDefaults() Options {
	if o.KeyWidth == 0 {
		o.KeyWidth = DefaultKeyWidth
	}
	if o.PrimaryKey == "" {
		o.PrimaryKey = DefaultPrimaryKey
	}
	if o.BatchSize < 1 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxConcurrency < 1 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.MaxRetryAttempts < 1 {
		o.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if o.FailureSampleLimit < 1 {
		o.FailureSampleLimit = DefaultFailureSampleLimit
	}
	if o.DrainTimeout == 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
	if o.ReportInterval < 1 {
		o.ReportInterval = DefaultReportInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// validate checks the fields NewCodec and the coordinator cannot default
// their way around.
func (o Options) validate() error {
	if o.KeyWidth > 64 {
		return fmt.Errorf("scatter: key width must be in [1, 64], got %d", o.KeyWidth)
	}
	if o.FailureTolerance < 0 {
		return fmt.Errorf("scatter: failure tolerance must be >= 0, got %d", o.FailureTolerance)
	}
	return nil
}
