package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/Liqwid-Labs/hose-sub000/internal/log"
)

// BadgerDB keeps the index in a Badger directory. Every write, single or
// batched, is one Badger transaction.
type BadgerDB struct {
	db *badger.DB
}

// badgerLogger routes Badger's own messages into the index logger.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Trace().Msgf(strings.TrimSpace(format), args...)
}

func badgerOptions(path string) badger.Options {
	return badger.DefaultOptions(path).
		WithLogger(badgerLogger{logger: log.Index.With().Str("store", "badger").Logger()}).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true)
}

// NewBadger opens the index directory at path. A directory held by another
// process fails with ErrLocked.
func NewBadger(path string) (*BadgerDB, error) {
	db, err := badger.Open(badgerOptions(path))
	if err != nil {
		if isBadgerLockErr(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrLocked, path, err)
		}
		return nil, fmt.Errorf("open badger index at %s: %w", path, err)
	}
	return &BadgerDB{db: db}, nil
}

func isBadgerLockErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Cannot acquire directory lock") ||
		strings.Contains(msg, "resource temporarily unavailable")
}

// NewBadgerInMemory opens a Badger index with no backing directory.
func NewBadgerInMemory() (*BadgerDB, error) {
	db, err := badger.Open(badgerOptions("").WithInMemory(true))
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger index: %w", err)
	}
	return &BadgerDB{db: db}, nil
}

func (b *BadgerDB) item(key []byte, fn func(*badger.Item) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return fn(item)
	})
}

func (b *BadgerDB) Get(key []byte) ([]byte, error) {
	var val []byte
	err := b.item(key, func(item *badger.Item) error {
		var err error
		val, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return val, nil
}

func (b *BadgerDB) Has(key []byte) (bool, error) {
	err := b.item(key, func(*badger.Item) error { return nil })
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("badger has: %w", err)
	}
	return true, nil
}

func (b *BadgerDB) Put(key, value []byte) error {
	batch := b.NewBatch()
	_ = batch.Put(key, value)
	return batch.Commit()
}

func (b *BadgerDB) Delete(key []byte) error {
	batch := b.NewBatch()
	_ = batch.Delete(key)
	return batch.Commit()
}

// scan walks the keys under prefix. Values are only fetched when withValues
// is set.
func (b *BadgerDB) scan(prefix []byte, withValues bool, fn func(item *badger.Item) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = withValues
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := fn(it.Item()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return b.scan(prefix, true, func(item *badger.Item) error {
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return fn(item.KeyCopy(nil), val)
	})
}

func (b *BadgerDB) Count(prefix []byte) (int, error) {
	n := 0
	err := b.scan(prefix, false, func(*badger.Item) error {
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger count: %w", err)
	}
	return n, nil
}

func (b *BadgerDB) NewBatch() Batch {
	return &badgerBatch{db: b.db}
}

func (b *BadgerDB) Close() error {
	return b.db.Close()
}

type badgerBatch struct {
	opBuffer
	db *badger.DB
}

func (bb *badgerBatch) Commit() error {
	err := bb.db.Update(func(txn *badger.Txn) error {
		for _, op := range bb.ops {
			if op.delete {
				if err := txn.Delete(op.key); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(op.key, op.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger commit of %d ops: %w", len(bb.ops), err)
	}
	bb.ops = nil
	return nil
}
