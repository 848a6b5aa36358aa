package scatter

// RecordBatcher accumulates transformed records into bounded batches to
// amortize per-write round trips against the target store. It is not safe
// for concurrent use; the coordinator gives each worker lane its own
// batcher.
//
// Every record passed to Add appears in exactly one emitted batch, in
// arrival order within that batch. Order across batches is not guaranteed:
// the scatter transform exists precisely to destroy key-sequential
// locality, and the store offers no cross-partition write ordering anyway.
type RecordBatcher struct {
	size    int
	pending []Record

	// nextSeq issues batch sequence numbers. The coordinator points all
	// lane batchers at one shared counter so sequence numbers are unique
	// per run.
	nextSeq func() uint64
	seq     uint64
}

// NewRecordBatcher returns a batcher that emits batches of at most size
// records. Sizes less than 1 fall back to DefaultBatchSize.
func NewRecordBatcher(size int) *RecordBatcher {
	if size < 1 {
		size = DefaultBatchSize
	}
	return &RecordBatcher{size: size}
}

// Add appends one record to the accumulating batch. When the batch reaches
// the size threshold it is returned with ok=true and a fresh accumulation
// begins; otherwise ok is false and the zero Batch is returned.
func (b *RecordBatcher) Add(rec Record) (Batch, bool) {
	if b.pending == nil {
		b.pending = make([]Record, 0, b.size)
	}
	b.pending = append(b.pending, rec)
	if len(b.pending) < b.size {
		return Batch{}, false
	}
	return b.emit(), true
}

// Flush emits the partial batch accumulated so far, for end-of-stream
// handling. ok is false when nothing is pending.
func (b *RecordBatcher) Flush() (Batch, bool) {
	if len(b.pending) == 0 {
		return Batch{}, false
	}
	return b.emit(), true
}

// Pending returns the number of records accumulated but not yet emitted.
func (b *RecordBatcher) Pending() int { return len(b.pending) }

func (b *RecordBatcher) emit() Batch {
	batch := Batch{Seq: b.sequence(), Records: b.pending}
	b.pending = nil
	return batch
}

func (b *RecordBatcher) sequence() uint64 {
	if b.nextSeq != nil {
		return b.nextSeq()
	}
	b.seq++
	return b.seq
}

// Split chunks records into runs of at most size elements, preserving
// order. Store adapters with their own payload caps (SQL parameter limits,
// request size limits) can re-chunk a batch before committing.
func Split(records []Record, size int) [][]Record {
	if len(records) == 0 || size <= 0 {
		return nil
	}

	numChunks := (len(records) + size - 1) / size
	result := make([][]Record, 0, numChunks)

	for i := 0; i < len(records); i += size {
		end := min(i+size, len(records))
		result = append(result, records[i:end])
	}

	return result
}
