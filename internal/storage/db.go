// Package storage provides key-value stores for the persisted UTxO index.
package storage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("key not found")
	// ErrLocked is returned when another process holds the index open.
	ErrLocked = errors.New("index is locked by another process")
)

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in key order.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	// Count returns the number of keys under prefix without reading values.
	Count(prefix []byte) (int, error)
	// NewBatch starts a group of writes that commit atomically.
	NewBatch() Batch
	Close() error
}

// Batch collects writes until Commit.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Open picks a store for path: an empty path or ":memory:" gives a MemoryDB,
// a path ending in ".db" or ".bolt" a bbolt file, anything else a Badger
// directory.
func Open(path string) (DB, error) {
	switch {
	case path == "" || path == ":memory:":
		return NewMemory(), nil
	case strings.HasSuffix(path, ".db"), strings.HasSuffix(path, ".bolt"):
		return NewBolt(path)
	default:
		db, err := NewBadger(path)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		return db, nil
	}
}

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// opBuffer records batch operations with copied keys and values.
type opBuffer struct {
	ops []batchOp
}

func (b *opBuffer) Put(key, value []byte) error {
	b.ops = append(b.ops, batchOp{key: clone(key), value: clone(value)})
	return nil
}

func (b *opBuffer) Delete(key []byte) error {
	b.ops = append(b.ops, batchOp{key: clone(key), delete: true})
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
