package txpool

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/vanguardchain/vanguard/storage"
	"github.com/vanguardchain/vanguard/types"
)

// errTruncated marks a journal record shorter than its own length prefixes
// claim, which can only mean on-disk corruption.
var errTruncated = errors.New("txpool: truncated journal record")

// journalPrefix keys persisted pool entries, following the single-byte
// prefix convention the rest of storage uses.
var journalPrefix = []byte("t")

func journalKey(hash types.Hash) []byte {
	return append(append([]byte{}, journalPrefix...), hash[:]...)
}

// Journal persists submitted transactions so a restarted node can reload
// its pool without waiting to re-receive them over the network. It does
// not track readiness; Pool recomputes that from scratch on Load.
type Journal struct {
	db storage.Database
}

// NewJournal wraps db for transaction persistence.
func NewJournal(db storage.Database) *Journal {
	return &Journal{db: db}
}

// Append records tx under hash.
func (j *Journal) Append(hash types.Hash, tx Transaction) error {
	return j.db.Put(journalKey(hash), encodeTransaction(tx))
}

// Remove deletes a previously journaled transaction. Absence is not an
// error.
func (j *Journal) Remove(hash types.Hash) error {
	return j.db.Delete(journalKey(hash))
}

// Load replays every journaled transaction into pool, in the order the
// underlying store's iterator yields them. Readiness is recomputed by
// Submit as usual, so the resulting ready set is order-independent.
func (j *Journal) Load(pool *Pool, atBlock types.BlockNumber) error {
	it, ok := j.db.(storage.KeyValueIterator)
	if !ok {
		return nil // backing store doesn't support iteration; nothing to replay
	}
	iter := it.NewIterator(journalPrefix)
	defer iter.Release()
	for iter.Next() {
		tx, err := decodeTransaction(iter.Value())
		if err != nil {
			return err
		}
		if err := pool.Submit(tx, atBlock); err != nil && err != types.ErrAlreadyImported {
			return err
		}
	}
	return nil
}

// encodeTransaction is a simple length-prefixed encoding: extrinsic,
// requires tags, provides tags, priority.
func encodeTransaction(tx Transaction) []byte {
	buf := make([]byte, 0, 64+len(tx.Extrinsic))
	buf = appendBytes(buf, tx.Extrinsic)
	buf = appendTags(buf, tx.Requires)
	buf = appendTags(buf, tx.Provides)
	buf = appendUint64(buf, tx.Priority)
	return buf
}

func decodeTransaction(data []byte) (Transaction, error) {
	var tx Transaction
	off := 0

	extrinsic, n, err := readBytes(data, off)
	if err != nil {
		return tx, err
	}
	off += n
	tx.Extrinsic = types.Extrinsic(extrinsic)

	requires, n, err := readTags(data, off)
	if err != nil {
		return tx, err
	}
	off += n
	tx.Requires = requires

	provides, n, err := readTags(data, off)
	if err != nil {
		return tx, err
	}
	off += n
	tx.Provides = provides

	priority, _, err := readUint64(data, off)
	if err != nil {
		return tx, err
	}
	tx.Priority = priority

	return tx, nil
}

func appendBytes(buf, b []byte) []byte {
	buf = appendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func appendTags(buf []byte, tags []Tag) []byte {
	buf = appendUint32(buf, uint32(len(tags)))
	for _, tag := range tags {
		buf = appendBytes(buf, []byte(tag))
	}
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func readBytes(data []byte, off int) ([]byte, int, error) {
	n, err := readUint32(data, off)
	if err != nil {
		return nil, 0, err
	}
	start := off + 4
	end := start + int(n)
	if end > len(data) {
		return nil, 0, errTruncated
	}
	return append([]byte(nil), data[start:end]...), 4 + int(n), nil
}

func readTags(data []byte, off int) ([]Tag, int, error) {
	count, err := readUint32(data, off)
	if err != nil {
		return nil, 0, err
	}
	total := 4
	off += 4
	tags := make([]Tag, 0, count)
	for i := uint32(0); i < count; i++ {
		b, n, err := readBytes(data, off)
		if err != nil {
			return nil, 0, err
		}
		tags = append(tags, Tag(b))
		off += n
		total += n
	}
	return tags, total, nil
}

func readUint32(data []byte, off int) (uint32, error) {
	if off+4 > len(data) {
		return 0, errTruncated
	}
	return binary.BigEndian.Uint32(data[off : off+4]), nil
}

func readUint64(data []byte, off int) (uint64, int, error) {
	if off+8 > len(data) {
		return 0, 0, errTruncated
	}
	return binary.BigEndian.Uint64(data[off : off+8]), 8, nil
}
