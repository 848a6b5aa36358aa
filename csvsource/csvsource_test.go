package csvsource_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keybits/scatter"
	"github.com/keybits/scatter/csvsource"
)

func writeCSV(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func collect(t *testing.T, src *csvsource.Source) ([]scatter.Record, []error) {
	t.Helper()
	var records []scatter.Record
	var errs []error
	for rec, err := range src.Records(context.Background()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

func TestSource_ReadsRecords(t *testing.T) {
	path := writeCSV(t, "OwnerID,Name,City\n1,alice,austin\n2,bob,boston\n")

	records, errs := collect(t, csvsource.New(path, "OwnerID"))
	require.Empty(t, errs)
	require.Len(t, records, 2)

	require.Equal(t, uint64(1), records[0].Keys["OwnerID"])
	require.Equal(t, "alice", records[0].Fields["Name"])
	require.Equal(t, "austin", records[0].Fields["City"])
	require.NotContains(t, records[0].Fields, "OwnerID", "key columns are not payload")

	require.Equal(t, uint64(2), records[1].Keys["OwnerID"])
}

func TestSource_MultipleKeyColumns(t *testing.T) {
	path := writeCSV(t, "id,owner_id,name\n10,7,x\n")

	records, errs := collect(t, csvsource.New(path, "id", "owner_id"))
	require.Empty(t, errs)
	require.Len(t, records, 1)
	require.Equal(t, uint64(10), records[0].Keys["id"])
	require.Equal(t, uint64(7), records[0].Keys["owner_id"])
	require.Equal(t, "x", records[0].Fields["name"])
}

func TestSource_MalformedKeyIsPerRecordError(t *testing.T) {
	path := writeCSV(t, "id,name\n1,ok\nabc,bad\n-5,negative\n2,ok too\n")

	records, errs := collect(t, csvsource.New(path, "id"))
	require.Len(t, records, 2, "good rows survive bad siblings")
	require.Len(t, errs, 2)

	for _, err := range errs {
		var verr *scatter.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "id", verr.Field)
	}
}

func TestSource_RaggedRowsArePerRecordErrors(t *testing.T) {
	// The key column sits last so a short row drops it entirely.
	path := writeCSV(t, "name,id\nalice,1\nbob\ncarol,3,extra\ndan,4\n")

	records, errs := collect(t, csvsource.New(path, "id"))
	require.Len(t, records, 3, "well-keyed rows survive a ragged sibling")
	require.Len(t, errs, 1)

	var verr *scatter.ValidationError
	require.ErrorAs(t, errs[0], &verr)
	require.Equal(t, "id", verr.Field)

	var keys []uint64
	for _, rec := range records {
		keys = append(keys, rec.Keys["id"])
	}
	require.Equal(t, []uint64{1, 3, 4}, keys)
}

func TestSource_MissingFileIsFatal(t *testing.T) {
	src := csvsource.New(filepath.Join(t.TempDir(), "nope.csv"), "id")

	_, errs := collect(t, src)
	require.Len(t, errs, 1)

	var srcErr *scatter.SourceError
	require.ErrorAs(t, errs[0], &srcErr)
}

func TestSource_MissingKeyColumnIsFatal(t *testing.T) {
	path := writeCSV(t, "a,b\n1,2\n")

	_, errs := collect(t, csvsource.New(path, "id"))
	require.Len(t, errs, 1)

	var srcErr *scatter.SourceError
	require.ErrorAs(t, errs[0], &srcErr)
	require.ErrorContains(t, errs[0], `key column "id"`)
}

func TestSource_NoKeyColumnsConfiguredIsFatal(t *testing.T) {
	path := writeCSV(t, "id\n1\n")

	_, errs := collect(t, csvsource.New(path))
	require.Len(t, errs, 1)

	var srcErr *scatter.SourceError
	require.ErrorAs(t, errs[0], &srcErr)
}

func TestSource_Restartable(t *testing.T) {
	path := writeCSV(t, "id,name\n1,a\n2,b\n")
	src := csvsource.New(path, "id")

	first, errs := collect(t, src)
	require.Empty(t, errs)
	second, errs := collect(t, src)
	require.Empty(t, errs)
	require.Equal(t, first, second, "each Records call re-reads the file")
}

func TestSource_StopsOnCancel(t *testing.T) {
	path := writeCSV(t, "id\n1\n2\n3\n")
	src := csvsource.New(path, "id")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen int
	for _, err := range src.Records(ctx) {
		require.NoError(t, err)
		seen++
		cancel()
	}
	require.Equal(t, 1, seen)
}

func TestSource_FeedsPipeline(t *testing.T) {
	path := writeCSV(t, "id,name\n1,a\n2,b\n3,c\n")

	store := &captureStore{}
	coord, err := scatter.New(csvsource.New(path, "id"), store, scatter.Options{
		KeyWidth:       8,
		PrimaryKey:     "id",
		MaxConcurrency: 1,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	summary, err := coord.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), summary.Stats.Written())
	require.ElementsMatch(t, []uint64{128, 64, 192}, store.keys())
}

type captureStore struct {
	mu     sync.Mutex
	stored []uint64
}

func (s *captureStore) Apply(_ context.Context, records []scatter.Record) ([]scatter.RecordError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.stored = append(s.stored, r.Keys["id"])
	}
	return nil, nil
}

func (s *captureStore) keys() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.stored))
	copy(out, s.stored)
	return out
}
