package scatter_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keybits/scatter"
)

func rec(id uint64) scatter.Record {
	return scatter.Record{
		Keys:   map[string]uint64{"id": id},
		Fields: map[string]string{"name": "r" + strconv.FormatUint(id, 10)},
	}
}

func TestRecordBatcher_AddEmitsAtThreshold(t *testing.T) {
	b := scatter.NewRecordBatcher(3)

	_, full := b.Add(rec(1))
	require.False(t, full)
	_, full = b.Add(rec(2))
	require.False(t, full)
	require.Equal(t, 2, b.Pending())

	batch, full := b.Add(rec(3))
	require.True(t, full)
	require.Equal(t, uint64(1), batch.Seq)
	require.Len(t, batch.Records, 3)
	require.Equal(t, 0, b.Pending())

	// Arrival order is preserved within the batch.
	for i, r := range batch.Records {
		require.Equal(t, uint64(i+1), r.Keys["id"])
	}
}

func TestRecordBatcher_FlushEmitsPartial(t *testing.T) {
	b := scatter.NewRecordBatcher(10)

	_, full := b.Add(rec(1))
	require.False(t, full)
	_, full = b.Add(rec(2))
	require.False(t, full)

	batch, ok := b.Flush()
	require.True(t, ok)
	require.Len(t, batch.Records, 2)

	// Nothing pending after a flush.
	_, ok = b.Flush()
	require.False(t, ok)
}

func TestRecordBatcher_FlushEmptyIsNoop(t *testing.T) {
	b := scatter.NewRecordBatcher(5)
	_, ok := b.Flush()
	require.False(t, ok)
}

func TestRecordBatcher_EveryRecordExactlyOnce(t *testing.T) {
	const total = 107
	b := scatter.NewRecordBatcher(10)

	var batches []scatter.Batch
	for id := uint64(0); id < total; id++ {
		if batch, full := b.Add(rec(id)); full {
			batches = append(batches, batch)
		}
	}
	if batch, ok := b.Flush(); ok {
		batches = append(batches, batch)
	}

	require.Len(t, batches, 11) // 10 full + 1 partial of 7

	seen := make(map[uint64]int)
	var lastSeq uint64
	for _, batch := range batches {
		require.Greater(t, batch.Seq, lastSeq, "sequence numbers are monotonic")
		lastSeq = batch.Seq
		for _, r := range batch.Records {
			seen[r.Keys["id"]]++
		}
	}

	require.Len(t, seen, total)
	for id, count := range seen {
		require.Equal(t, 1, count, "record %d emitted %d times", id, count)
	}
}

func TestRecordBatcher_SizeFallsBackToDefault(t *testing.T) {
	b := scatter.NewRecordBatcher(0)
	for i := range scatter.DefaultBatchSize - 1 {
		_, full := b.Add(rec(uint64(i)))
		require.False(t, full)
	}
	_, full := b.Add(rec(uint64(scatter.DefaultBatchSize)))
	require.True(t, full)
}

func TestSplit(t *testing.T) {
	records := make([]scatter.Record, 7)
	for i := range records {
		records[i] = rec(uint64(i))
	}

	tests := []struct {
		name     string
		records  []scatter.Record
		size     int
		expected []int // chunk lengths
	}{
		{name: "empty", records: nil, size: 3, expected: nil},
		{name: "zero size", records: records, size: 0, expected: nil},
		{name: "single chunk", records: records, size: 10, expected: []int{7}},
		{name: "even split with remainder", records: records, size: 3, expected: []int{3, 3, 1}},
		{name: "exact split", records: records[:6], size: 3, expected: []int{3, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := scatter.Split(tt.records, tt.size)
			require.Len(t, chunks, len(tt.expected))
			for i, want := range tt.expected {
				require.Len(t, chunks[i], want)
			}
		})
	}
}
