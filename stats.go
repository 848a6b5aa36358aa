package scatter

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
)

// Stats tracks run counters with thread-safe access. The counters are the
// only mutable state shared across worker lanes, updated atomically.
type Stats struct {
	read        atomic.Int64
	transformed atomic.Int64
	batches     atomic.Int64
	written     atomic.Int64
	failed      atomic.Int64
}

// NewStats creates a Stats with initial counter values.
func NewStats(read, transformed, batches, written, failed int64) *Stats {
	s := &Stats{}
	s.read.Store(read)
	s.transformed.Store(transformed)
	s.batches.Store(batches)
	s.written.Store(written)
	s.failed.Store(failed)
	return s
}

// Read returns the number of records pulled from the source.
func (s *Stats) Read() int64 { return s.read.Load() }

// Transformed returns the number of records whose keys were scattered.
func (s *Stats) Transformed() int64 { return s.transformed.Load() }

// Batches returns the number of batches committed to the store.
func (s *Stats) Batches() int64 { return s.batches.Load() }

// Written returns the number of records durably written.
func (s *Stats) Written() int64 { return s.written.Load() }

// Failed returns the number of records that failed permanently.
func (s *Stats) Failed() int64 { return s.failed.Load() }

// LogValue implements slog.LogValuer for structured logging.
func (s *Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("read", s.Read()),
		slog.Int64("transformed", s.Transformed()),
		slog.Int64("batches", s.Batches()),
		slog.Int64("written", s.Written()),
		slog.Int64("failed", s.Failed()),
	)
}

// statsJSON is the JSON representation for marshaling/unmarshaling Stats.
type statsJSON struct {
	Read        int64 `json:"read"`
	Transformed int64 `json:"transformed"`
	Batches     int64 `json:"batches"`
	Written     int64 `json:"written"`
	Failed      int64 `json:"failed"`
}

// MarshalJSON implements json.Marshaler for Stats serialization.
func (s *Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(statsJSON{
		Read:        s.read.Load(),
		Transformed: s.transformed.Load(),
		Batches:     s.batches.Load(),
		Written:     s.written.Load(),
		Failed:      s.failed.Load(),
	})
}

// UnmarshalJSON implements json.Unmarshaler for Stats deserialization.
func (s *Stats) UnmarshalJSON(data []byte) error {
	var v statsJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	s.read.Store(v.Read)
	s.transformed.Store(v.Transformed)
	s.batches.Store(v.Batches)
	s.written.Store(v.Written)
	s.failed.Store(v.Failed)
	return nil
}

// Internal increment methods. Each returns the counter's new value.
func (s *Stats) incRead(n int64) int64        { return s.read.Add(n) }
func (s *Stats) incTransformed(n int64) int64 { return s.transformed.Add(n) }
func (s *Stats) incBatches(n int64) int64     { return s.batches.Add(n) }
func (s *Stats) incWritten(n int64) int64     { return s.written.Add(n) }
func (s *Stats) incFailed(n int64) int64      { return s.failed.Add(n) }
