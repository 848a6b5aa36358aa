// Package pgstore commits scattered records to a Postgres table with
// multi-row INSERT ... ON CONFLICT DO UPDATE statements, the upsert shape
// that makes batch retries idempotent.
package pgstore

import (
	"context"
	"database/sql"
	"net"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/keybits/scatter"
)

// maxParams is Postgres's per-statement bind parameter limit. Batches whose
// parameter count would exceed it are split before executing.
const maxParams = 65535

// Config describes the target table layout.
type Config struct {
	// Table is the destination table name.
	Table string

	// PrimaryKey is both the record's primary key field and the table's
	// conflict column.
	PrimaryKey string

	// KeyColumns lists additional scattered key fields stored as bigint
	// columns.
	KeyColumns []string

	// FieldColumns lists payload fields stored as text columns. A record
	// missing one of these stores NULL for it.
	FieldColumns []string
}

// Store is a scatter.Store writing to a Postgres table via database/sql
// and lib/pq.
type Store struct {
	db      *sql.DB
	cfg     Config
	columns []string
}

var _ scatter.Store = (*Store)(nil)

// New returns a Store writing to the table described by cfg. The table must
// already exist with a unique constraint on the primary key column; schema
// provisioning is an external concern.
func New(db *sql.DB, cfg Config) (*Store, error) {
	if cfg.Table == "" {
		return nil, errors.New("pgstore: table name is required")
	}
	if cfg.PrimaryKey == "" {
		return nil, errors.New("pgstore: primary key column is required")
	}

	columns := make([]string, 0, 1+len(cfg.KeyColumns)+len(cfg.FieldColumns))
	columns = append(columns, cfg.PrimaryKey)
	columns = append(columns, cfg.KeyColumns...)
	columns = append(columns, cfg.FieldColumns...)

	return &Store{db: db, cfg: cfg, columns: columns}, nil
}

// Apply upserts the batch, splitting it as needed to stay under Postgres's
// bind parameter limit. Records missing a key column are reported as
// per-record failures; the rest of the batch still commits.
//
// Chunks of a split batch commit independently. A permanent statement
// failure fails only that chunk's records, so chunks already committed
// still count as written. A transient failure aborts the whole batch for
// retry; re-applying the committed chunks converges through the upsert.
func (s *Store) Apply(ctx context.Context, records []scatter.Record) ([]scatter.RecordError, error) {
	var recordErrs []scatter.RecordError

	valid := make([]scatter.Record, 0, len(records))
	for _, rec := range records {
		if re, ok := s.checkRecord(rec); !ok {
			recordErrs = append(recordErrs, re)
			continue
		}
		valid = append(valid, rec)
	}
	if len(valid) == 0 {
		return recordErrs, nil
	}

	maxRows := maxParams / len(s.columns)
	chunkErrs, err := s.applyChunks(ctx, scatter.Split(valid, maxRows), s.upsert)
	if err != nil {
		return nil, err
	}

	return append(recordErrs, chunkErrs...), nil
}

// applyChunks commits each chunk through exec. Transient failures abort
// immediately with a batch-level error; permanent failures convert the
// chunk's records to per-record failures and later chunks still commit.
func (s *Store) applyChunks(ctx context.Context, chunks [][]scatter.Record, exec func(context.Context, []scatter.Record) error) ([]scatter.RecordError, error) {
	var recordErrs []scatter.RecordError

	for _, chunk := range chunks {
		err := exec(ctx, chunk)
		if err == nil {
			continue
		}
		if retryable(err) {
			return nil, scatter.Transient(errors.Wrap(err, "pgstore: upsert batch"))
		}

		wrapped := errors.Wrap(err, "pgstore: upsert chunk")
		for _, rec := range chunk {
			recordErrs = append(recordErrs, scatter.RecordError{
				Key: rec.Keys[s.cfg.PrimaryKey],
				Err: wrapped,
			})
		}
	}

	return recordErrs, nil
}

func (s *Store) checkRecord(rec scatter.Record) (scatter.RecordError, bool) {
	if _, ok := rec.Keys[s.cfg.PrimaryKey]; !ok {
		return scatter.RecordError{Err: &scatter.ValidationError{
			Field:  s.cfg.PrimaryKey,
			Reason: "missing primary key field",
		}}, false
	}
	for _, col := range s.cfg.KeyColumns {
		if _, ok := rec.Keys[col]; !ok {
			return scatter.RecordError{
				Key: rec.Keys[s.cfg.PrimaryKey],
				Err: &scatter.ValidationError{Field: col, Reason: "missing key field"},
			}, false
		}
	}
	return scatter.RecordError{}, true
}

func (s *Store) upsert(ctx context.Context, records []scatter.Record) error {
	args := make([]any, 0, len(records)*len(s.columns))
	for _, rec := range records {
		// Keys are stored two's-complement in signed bigint columns; the
		// scatter transform sets high bits, so values above MaxInt64 are
		// expected and round-trip through the cast.
		args = append(args, int64(rec.Keys[s.cfg.PrimaryKey]))
		for _, col := range s.cfg.KeyColumns {
			args = append(args, int64(rec.Keys[col]))
		}
		for _, col := range s.cfg.FieldColumns {
			if v, ok := rec.Fields[col]; ok {
				args = append(args, v)
			} else {
				args = append(args, nil)
			}
		}
	}

	_, err := s.db.ExecContext(ctx, s.upsertStmt(len(records)), args...)
	return err
}

// upsertStmt builds the multi-row upsert statement for n rows.
func (s *Store) upsertStmt(n int) string {
	var b strings.Builder

	b.WriteString("INSERT INTO ")
	b.WriteString(pq.QuoteIdentifier(s.cfg.Table))
	b.WriteString(" (")
	for i, col := range s.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pq.QuoteIdentifier(col))
	}
	b.WriteString(") VALUES ")

	param := 1
	for row := 0; row < n; row++ {
		if row > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for i := range s.columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(param))
			param++
		}
		b.WriteByte(')')
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(pq.QuoteIdentifier(s.cfg.PrimaryKey))
	b.WriteString(")")

	if len(s.columns) == 1 {
		// Key-only table: nothing to update, the conflict is a no-op.
		b.WriteString(" DO NOTHING")
		return b.String()
	}

	b.WriteString(" DO UPDATE SET ")
	for i, col := range s.columns[1:] {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pq.QuoteIdentifier(col))
		b.WriteString(" = EXCLUDED.")
		b.WriteString(pq.QuoteIdentifier(col))
	}

	return b.String()
}

// retryable classifies driver errors the way the write executor expects:
// resource exhaustion, operator intervention, serialization conflicts, and
// network timeouts are transient; everything else (constraint violations,
// bad SQL) is permanent.
func retryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "53", "57", "58": // insufficient resources, intervention, system error
			return true
		}
		switch pqErr.Code {
		case "40001", "40P01": // serialization failure, deadlock detected
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
