package storage

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

// testDB runs the shared test suite against a DB implementation.
func testDB(t *testing.T, db DB) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) {
		if err := db.Put([]byte("key1"), []byte("value1")); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
		val, err := db.Get([]byte("key1"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !bytes.Equal(val, []byte("value1")) {
			t.Errorf("Get() = %q, want %q", val, "value1")
		}
	})

	t.Run("GetNonexistent", func(t *testing.T) {
		_, err := db.Get([]byte("nonexistent"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() for missing key = %v, want ErrNotFound", err)
		}
	})

	t.Run("Has", func(t *testing.T) {
		db.Put([]byte("exists"), []byte("yes"))

		ok, err := db.Has([]byte("exists"))
		if err != nil {
			t.Fatalf("Has() error: %v", err)
		}
		if !ok {
			t.Error("Has() = false for existing key")
		}
		ok, err = db.Has([]byte("missing"))
		if err != nil {
			t.Fatalf("Has() error: %v", err)
		}
		if ok {
			t.Error("Has() = true for missing key")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db.Put([]byte("del"), []byte("value"))
		if err := db.Delete([]byte("del")); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if ok, _ := db.Has([]byte("del")); ok {
			t.Error("key should be gone after Delete()")
		}
		if err := db.Delete([]byte("never-existed")); err != nil {
			t.Errorf("Delete() nonexistent key error: %v", err)
		}
	})

	t.Run("EmptyValue", func(t *testing.T) {
		if err := db.Put([]byte("empty"), []byte{}); err != nil {
			t.Fatalf("Put() empty value error: %v", err)
		}
		val, err := db.Get([]byte("empty"))
		if err != nil {
			t.Fatalf("Get() empty value error: %v", err)
		}
		if len(val) != 0 {
			t.Errorf("expected empty value, got %d bytes", len(val))
		}
	})

	t.Run("ForEachOrdered", func(t *testing.T) {
		db.Put([]byte("prefix/c"), []byte("3"))
		db.Put([]byte("prefix/a"), []byte("1"))
		db.Put([]byte("prefix/b"), []byte("2"))
		db.Put([]byte("other/x"), []byte("4"))

		var got []string
		err := db.ForEach([]byte("prefix/"), func(key, value []byte) error {
			got = append(got, string(key)+"="+string(value))
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach() error: %v", err)
		}
		want := []string{"prefix/a=1", "prefix/b=2", "prefix/c=3"}
		if len(got) != len(want) {
			t.Fatalf("ForEach(prefix/) = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("ForEach(prefix/)[%d] = %s, want %s", i, got[i], want[i])
			}
		}
	})

	t.Run("ForEachStop", func(t *testing.T) {
		stop := errors.New("stop")
		var count int
		err := db.ForEach([]byte("prefix/"), func(key, value []byte) error {
			count++
			return stop
		})
		if !errors.Is(err, stop) || count != 1 {
			t.Errorf("ForEach() = %v after %d calls, want stop after 1", err, count)
		}
	})

	t.Run("Count", func(t *testing.T) {
		db.Put([]byte("count/1"), []byte("a"))
		db.Put([]byte("count/2"), []byte("b"))
		db.Put([]byte("counter"), []byte("c"))
		n, err := db.Count([]byte("count/"))
		if err != nil {
			t.Fatalf("Count() error: %v", err)
		}
		if n != 2 {
			t.Errorf("Count(count/) = %d, want 2", n)
		}
		if n, _ := db.Count([]byte("none/")); n != 0 {
			t.Errorf("Count(none/) = %d, want 0", n)
		}
	})

	t.Run("Batch", func(t *testing.T) {
		db.Put([]byte("batch/old"), []byte("x"))

		b := db.NewBatch()
		b.Put([]byte("batch/new"), []byte("y"))
		b.Delete([]byte("batch/old"))
		if ok, _ := db.Has([]byte("batch/new")); ok {
			t.Fatal("batch write visible before Commit()")
		}
		if err := b.Commit(); err != nil {
			t.Fatalf("Commit() error: %v", err)
		}
		if ok, _ := db.Has([]byte("batch/old")); ok {
			t.Error("batch delete not applied")
		}
		val, err := db.Get([]byte("batch/new"))
		if err != nil || !bytes.Equal(val, []byte("y")) {
			t.Errorf("Get(batch/new) = %q, %v", val, err)
		}
	})
}

func TestMemoryDB(t *testing.T) {
	db := NewMemory()
	defer db.Close()
	testDB(t, db)
}

func TestBadgerDB(t *testing.T) {
	db, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()
	testDB(t, db)
}

func TestBoltDB(t *testing.T) {
	db, err := NewBolt(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("NewBolt() error: %v", err)
	}
	defer db.Close()
	testDB(t, db)
}

func TestOpenLocked(t *testing.T) {
	dir := t.TempDir()
	for _, path := range []string{filepath.Join(dir, "badger"), filepath.Join(dir, "index.db")} {
		db, err := Open(path)
		if err != nil {
			t.Fatalf("Open(%s) error: %v", path, err)
		}
		if _, err := Open(path); !errors.Is(err, ErrLocked) {
			t.Errorf("second Open(%s) = %v, want ErrLocked", path, err)
		}
		db.Close()
	}
}

func TestBadgerInMemory(t *testing.T) {
	db, err := NewBadgerInMemory()
	if err != nil {
		t.Fatalf("NewBadgerInMemory() error: %v", err)
	}
	defer db.Close()
	testDB(t, db)
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()
	for _, path := range []string{filepath.Join(dir, "badger"), filepath.Join(dir, "index.db")} {
		db1, err := Open(path)
		if err != nil {
			t.Fatalf("Open(%s) error: %v", path, err)
		}
		db1.Put([]byte("persist"), []byte("data"))
		db1.Close()

		db2, err := Open(path)
		if err != nil {
			t.Fatalf("Open(%s) reopen error: %v", path, err)
		}
		val, err := db2.Get([]byte("persist"))
		if err != nil {
			t.Fatalf("Get() after reopen error: %v", err)
		}
		if !bytes.Equal(val, []byte("data")) {
			t.Errorf("persisted value = %q, want %q", val, "data")
		}
		db2.Close()
	}
}

func TestOpenMemory(t *testing.T) {
	db, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := db.(*MemoryDB); !ok {
		t.Errorf("Open(\"\") = %T, want *MemoryDB", db)
	}
}
