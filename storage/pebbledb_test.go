package storage

import "testing"

func TestPebbleDBPutGetDelete(t *testing.T) {
	db, err := OpenPebbleDB(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	key, value := []byte("k"), []byte("v")
	if err := db.Put(key, value); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("got %q, want %q", got, value)
	}

	if ok, err := db.Has(key); err != nil || !ok {
		t.Fatalf("has: ok=%v err=%v", ok, err)
	}

	if err := db.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(key); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestPebbleDBBatch(t *testing.T) {
	db, err := OpenPebbleDB(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	batch := db.NewBatch()
	if err := batch.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := batch.Put([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("write: %v", err)
	}

	for k, want := range map[string]string{"a": "1", "b": "2"} {
		got, err := db.Get([]byte(k))
		if err != nil {
			t.Fatalf("get %s: %v", k, err)
		}
		if string(got) != want {
			t.Fatalf("get %s: got %q, want %q", k, got, want)
		}
	}
}

func TestPebbleDBIteratorByPrefix(t *testing.T) {
	db, err := OpenPebbleDB(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for _, k := range []string{"h\x00\x01", "h\x00\x02", "x\x00\x01"} {
		if err := db.Put([]byte(k), []byte("v")); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	it := db.NewIterator([]byte("h"))
	defer it.Release()
	count := 0
	for it.Next() {
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 keys under prefix, got %d", count)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	got := prefixUpperBound([]byte{0x01, 0x02})
	want := []byte{0x01, 0x03}
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if prefixUpperBound([]byte{0xff, 0xff}) != nil {
		t.Fatal("expected nil upper bound for all-0xff prefix")
	}
}
