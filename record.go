package scatter

// Record is one ingest row: named payload fields plus one or more designated
// integer key fields. Key fields are the values the codec scatters; the key
// field named by Options.PrimaryKey is the upsert/deduplication key at the
// store.
//
// Records are owned by the stage currently processing them and handed off by
// copy at stage boundaries; no stage retains a Record after passing it
// downstream. Use Clone before mutating a record you did not create.
type Record struct {
	// Keys holds the designated integer key fields. Every value must satisfy
	// 0 <= key < 2^W for the configured width W.
	Keys map[string]uint64

	// Fields holds the remaining row data.
	Fields map[string]string
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{}
	if r.Keys != nil {
		out.Keys = make(map[string]uint64, len(r.Keys))
		for k, v := range r.Keys {
			out.Keys[k] = v
		}
	}
	if r.Fields != nil {
		out.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// Batch is an ordered run of transformed records bound for a single store
// write. Seq identifies the batch for idempotent retry: re-sending a batch
// after a partial commit must converge on the same store state.
type Batch struct {
	Seq     uint64
	Records []Record
}

// RecordError is a per-record failure surfaced in write results and run
// summaries. Key is the record's primary key as it stood when the failure
// occurred (transformed if the record reached the write stage, raw if it was
// rejected before transform).
type RecordError struct {
	Key uint64
	Err error
}

func (e RecordError) Error() string { return e.Err.Error() }

func (e RecordError) Unwrap() error { return e.Err }

// WriteResult is the outcome of committing one batch: how many records were
// durably written, how many failed permanently, and the per-record errors.
// Errors is empty on full success.
type WriteResult struct {
	Written int
	Failed  int
	Errors  []RecordError
}
