// Package boltstore persists scattered records in an embedded bbolt
// database. bbolt keeps keys in byte order, which makes it a faithful
// stand-in for a range-partitioned store: big-endian encoded keys land in
// the same relative order they would across real partitions.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/keybits/scatter"
)

var bucketRecords = []byte("records")

// Store is a scatter.Store backed by a single bbolt bucket. Records are
// upserted under their big-endian primary key with JSON-encoded contents,
// so re-applying a committed batch overwrites identical data in place.
type Store struct {
	db         *bolt.DB
	path       string
	primaryKey string
}

var _ scatter.Store = (*Store)(nil)

// Open opens (creating if needed) a bbolt store at path. primaryKey names
// the record key field used as the bucket key.
func Open(path, primaryKey string) (*Store, error) {
	if primaryKey == "" {
		return nil, errors.New("boltstore: primary key field name is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", filepath.Dir(path))
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init bucket")
	}

	return &Store{db: db, path: path, primaryKey: primaryKey}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Apply upserts the batch in one transaction. A record missing its primary
// key or failing to encode is reported as a per-record failure; the rest of
// the batch still commits.
func (s *Store) Apply(ctx context.Context, records []scatter.Record) ([]scatter.RecordError, error) {
	if err := ctx.Err(); err != nil {
		return nil, scatter.Transient(err)
	}

	var recordErrs []scatter.RecordError

	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketRecords)
		if bkt == nil {
			return errors.Errorf("bucket %q not found", bucketRecords)
		}

		for _, rec := range records {
			key, ok := rec.Keys[s.primaryKey]
			if !ok {
				recordErrs = append(recordErrs, scatter.RecordError{
					Err: &scatter.ValidationError{
						Field:  s.primaryKey,
						Reason: "missing primary key field",
					},
				})
				continue
			}

			value, err := encodeRecord(rec)
			if err != nil {
				recordErrs = append(recordErrs, scatter.RecordError{Key: key, Err: err})
				continue
			}

			if err := bkt.Put(encodeKey(key), value); err != nil {
				return errors.Wrapf(err, "put key %d", key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "boltstore: apply batch")
	}

	return recordErrs, nil
}

// Get reads back the record stored under key. The bool reports presence.
func (s *Store) Get(key uint64) (scatter.Record, bool, error) {
	var rec scatter.Record
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(bucketRecords).Get(encodeKey(key))
		if value == nil {
			return nil
		}
		found = true
		return json.Unmarshal(value, &rec)
	})
	if err != nil {
		return scatter.Record{}, false, errors.Wrapf(err, "boltstore: get key %d", key)
	}

	return rec, found, nil
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketRecords).Stats().KeyN
		return nil
	})
	return n, errors.Wrap(err, "boltstore: count")
}

// encodeKey renders the key big-endian so bbolt's byte ordering matches
// numeric key ordering.
func encodeKey(key uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], key)
	return buf[:]
}

func encodeRecord(rec scatter.Record) ([]byte, error) {
	value, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "encode record")
	}
	return value, nil
}
