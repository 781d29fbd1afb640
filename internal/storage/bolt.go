package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

var bucketData = []byte("data")

// BoltDB implements DB using a single bbolt bucket.
type BoltDB struct {
	db *bolt.DB
}

// NewBolt opens or creates a bbolt file at path.
func NewBolt(path string) (*BoltDB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if errors.Is(err, berrors.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketData)
		return err
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucketData, err)
	}
	return &BoltDB{db: bdb}, nil
}

// Get retrieves a value by key.
func (b *BoltDB) Get(key []byte) ([]byte, error) {
	var out []byte
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		k, v := tx.Bucket(bucketData).Cursor().Seek(key)
		if k != nil && bytes.Equal(k, key) {
			out, found = clone(v), true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bbolt get: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return out, nil
}

// Put stores a key-value pair.
func (b *BoltDB) Put(key, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketData).Put(key, value)
	})
}

// Delete removes a key.
func (b *BoltDB) Delete(key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketData).Delete(key)
	})
}

// Has checks if a key exists.
func (b *BoltDB) Has(key []byte) (bool, error) {
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket(bucketData).Cursor().Seek(key)
		ok = k != nil && bytes.Equal(k, key)
		return nil
	})
	return ok, err
}

// ForEach iterates over all keys with the given prefix.
func (b *BoltDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketData).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(clone(k), clone(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltDB) Count(prefix []byte) (int, error) {
	n := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketData).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// NewBatch returns a batch committed in one bbolt transaction.
func (b *BoltDB) NewBatch() Batch {
	return &boltBatch{db: b.db}
}

// Close closes the database.
func (b *BoltDB) Close() error {
	return b.db.Close()
}

type boltBatch struct {
	opBuffer
	db *bolt.DB
}

func (bb *boltBatch) Commit() error {
	err := bb.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketData)
		for _, op := range bb.ops {
			var err error
			if op.delete {
				err = bucket.Delete(op.key)
			} else {
				err = bucket.Put(op.key, op.value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bbolt commit: %w", err)
	}
	bb.ops = nil
	return nil
}
