// Package csvsource reads ingest records from a CSV file with a header
// row. Designated key columns are parsed as unsigned integers; every other
// column becomes a payload field.
package csvsource

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"

	"github.com/keybits/scatter"
)

// Source is a scatter.Source over one CSV file. The file is re-opened on
// each Records call, so the source is restartable.
type Source struct {
	path       string
	keyColumns []string
}

var _ scatter.Source = (*Source)(nil)

// New returns a Source reading path. keyColumns names the header columns
// holding integer key fields; at least one is required and all must be
// present in the header row.
func New(path string, keyColumns ...string) *Source {
	return &Source{path: path, keyColumns: keyColumns}
}

// Records lazily yields one record per CSV row.
//
// A row whose key column fails to parse as a non-negative integer yields a
// *scatter.ValidationError and a zero record, a per-record failure rather
// than a fatal one. Problems with the file itself (open failure, missing
// key column, a read error mid-file) yield a *scatter.SourceError and end
// the sequence.
func (s *Source) Records(ctx context.Context) iter.Seq2[scatter.Record, error] {
	return func(yield func(scatter.Record, error) bool) {
		if len(s.keyColumns) == 0 {
			yield(scatter.Record{}, &scatter.SourceError{
				Err: fmt.Errorf("csvsource: no key columns configured for %s", s.path),
			})
			return
		}

		f, err := os.Open(s.path)
		if err != nil {
			yield(scatter.Record{}, &scatter.SourceError{Err: err})
			return
		}
		defer f.Close()

		r := csv.NewReader(f)
		r.TrimLeadingSpace = true
		// A ragged row is a per-record problem, not a file problem. Field
		// counts are checked in buildRecord so one bad row cannot end the
		// sequence.
		r.FieldsPerRecord = -1

		header, err := r.Read()
		if err != nil {
			yield(scatter.Record{}, &scatter.SourceError{
				Err: fmt.Errorf("reading header of %s: %w", s.path, err),
			})
			return
		}

		keyIdx, err := s.keyIndexes(header)
		if err != nil {
			yield(scatter.Record{}, &scatter.SourceError{Err: err})
			return
		}

		for {
			if ctx.Err() != nil {
				return
			}

			row, err := r.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(scatter.Record{}, &scatter.SourceError{
					Err: fmt.Errorf("reading %s: %w", s.path, err),
				})
				return
			}

			rec, rerr := buildRecord(header, keyIdx, row)
			if rerr != nil {
				if !yield(scatter.Record{}, rerr) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// keyIndexes maps configured key column names to their header positions.
func (s *Source) keyIndexes(header []string) (map[int]bool, error) {
	byName := make(map[string]int, len(header))
	for i, name := range header {
		byName[name] = i
	}

	keyIdx := make(map[int]bool, len(s.keyColumns))
	for _, name := range s.keyColumns {
		i, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("csvsource: key column %q not in header of %s", name, s.path)
		}
		keyIdx[i] = true
	}
	return keyIdx, nil
}

func buildRecord(header []string, keyIdx map[int]bool, row []string) (scatter.Record, error) {
	rec := scatter.Record{
		Keys:   make(map[string]uint64, len(keyIdx)),
		Fields: make(map[string]string, len(header)-len(keyIdx)),
	}

	for i, name := range header {
		if i >= len(row) {
			break
		}
		if !keyIdx[i] {
			rec.Fields[name] = row[i]
			continue
		}

		// ParseUint rejects negatives and garbage in one pass; the fixed-
		// width range check happens later at the codec.
		key, err := strconv.ParseUint(row[i], 10, 64)
		if err != nil {
			return scatter.Record{}, &scatter.ValidationError{
				Field:  name,
				Value:  row[i],
				Reason: "key is not a non-negative integer",
			}
		}
		rec.Keys[name] = key
	}

	for i := range keyIdx {
		if i >= len(row) {
			return scatter.Record{}, &scatter.ValidationError{
				Field:  header[i],
				Reason: "row too short, key column missing",
			}
		}
	}

	return rec, nil
}
