package keygen

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

var bucketSequences = []byte("key_sequences")

// BoltSequenceStore keeps sequences in an embedded bbolt file. bbolt serializes
// writers, so each ClaimBatch is an isolated read-modify-write.
type BoltSequenceStore struct {
	db *bbolt.DB
}

// OpenBoltSequenceStore opens (or creates) the store at path. opts may be nil.
func OpenBoltSequenceStore(path string, opts *bbolt.Options) (*BoltSequenceStore, error) {
	db, err := bbolt.Open(path, 0o640, opts)
	if err != nil {
		return nil, fmt.Errorf("keygen:sequence_bolt - open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSequences)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("keygen:sequence_bolt - init bucket: %w", err)
	}
	return &BoltSequenceStore{db: db}, nil
}

// ClaimBatch reserves size keys from the named sequence. Sequences start at 1.
func (s *BoltSequenceStore) ClaimBatch(_ context.Context, name string, size int) (Key, error) {
	var start uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSequences)
		start = 1
		if v := b.Get([]byte(name)); v != nil {
			start = binary.BigEndian.Uint64(v)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, start+uint64(size))
		return b.Put([]byte(name), buf)
	})
	if err != nil {
		return 0, fmt.Errorf("keygen:sequence_bolt - claim %s: %w", name, err)
	}
	return Key(start), nil
}

// Close closes the underlying bbolt database.
func (s *BoltSequenceStore) Close() error {
	return s.db.Close()
}
