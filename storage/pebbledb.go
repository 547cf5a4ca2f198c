package storage

import (
	"github.com/cockroachdb/pebble"
)

// PebbleDB is a disk-backed Database implementation on top of Pebble, used
// for the node's persistent store once MemoryDB is no longer sufficient
// (restarts, dataset sizes beyond what fits comfortably in memory).
type PebbleDB struct {
	db *pebble.DB
}

// OpenPebbleDB opens (or creates) a Pebble store at dir.
func OpenPebbleDB(dir string) (*PebbleDB, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleDB{db: db}, nil
}

func (p *PebbleDB) Has(key []byte) (bool, error) {
	v, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = v
	return true, closer.Close()
}

func (p *PebbleDB) Get(key []byte) ([]byte, error) {
	v, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	ret := make([]byte, len(v))
	copy(ret, v)
	return ret, nil
}

func (p *PebbleDB) Put(key, value []byte) error {
	return p.db.Set(key, value, pebble.Sync)
}

func (p *PebbleDB) Delete(key []byte) error {
	return p.db.Delete(key, pebble.Sync)
}

func (p *PebbleDB) Close() error { return p.db.Close() }

// NewBatch creates a new batch writer backed by Pebble's native batch.
func (p *PebbleDB) NewBatch() Batch {
	return &pebbleBatch{db: p.db, batch: p.db.NewBatch()}
}

// NewIterator returns an iterator over all keys sharing prefix.
func (p *PebbleDB) NewIterator(prefix []byte) Iterator {
	upper := prefixUpperBound(prefix)
	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return &pebbleIterator{err: err}
	}
	return &pebbleIterator{it: it, first: true}
}

// prefixUpperBound returns the smallest key greater than every key sharing
// prefix, or nil if prefix is all 0xff (meaning: no upper bound).
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte{}, prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] == 0xff {
			upper = upper[:i]
			continue
		}
		upper[i]++
		return upper[:i+1]
	}
	return nil
}

// --- Batch ---

type pebbleBatch struct {
	db    *pebble.DB
	batch *pebble.Batch
}

func (b *pebbleBatch) Put(key, value []byte) error { return b.batch.Set(key, value, nil) }
func (b *pebbleBatch) Delete(key []byte) error      { return b.batch.Delete(key, nil) }
func (b *pebbleBatch) ValueSize() int               { return int(b.batch.Len()) }
func (b *pebbleBatch) Write() error                 { return b.batch.Commit(pebble.Sync) }
func (b *pebbleBatch) Reset()                       { b.batch.Reset() }

// --- Iterator ---

type pebbleIterator struct {
	it    *pebble.Iterator
	first bool
	err   error
}

func (it *pebbleIterator) Next() bool {
	if it.it == nil {
		return false
	}
	if it.first {
		it.first = false
		return it.it.First()
	}
	return it.it.Next()
}

func (it *pebbleIterator) Key() []byte {
	if it.it == nil {
		return nil
	}
	return it.it.Key()
}

func (it *pebbleIterator) Value() []byte {
	if it.it == nil {
		return nil
	}
	v, _ := it.it.ValueAndErr()
	return v
}

func (it *pebbleIterator) Release() {
	if it.it != nil {
		it.it.Close()
	}
}
