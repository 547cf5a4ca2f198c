// Package runtime provides the node's own reference implementations of the
// ports.Runtime and ports.TrieStore oracles. Neither the on-chain WASM
// runtime nor the state trie it executes against is part of this subsystem's
// scope; a running node still needs something behind those two interfaces,
// so this package plays the same role for Runtime/TrieStore that crypto
// plays for ports.Crypto: a single concrete, local adapter wired in at the
// node layer, swappable without touching BlockExecutor.
package runtime

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/storage"
	"github.com/vanguardchain/vanguard/types"
)

var (
	// ErrUnknownRoot is returned when a read or commit targets a state root
	// this store has never produced.
	ErrUnknownRoot = errors.New("runtime: unknown state root")
	// ErrMalformedExtrinsic is returned for an extrinsic this runtime cannot
	// interpret, classified as CategoryIntegrity (a runtime trap).
	ErrMalformedExtrinsic = errors.New("runtime: malformed extrinsic")
	// ErrUnknownMethod is returned by Call for an unrecognised export name.
	ErrUnknownMethod = errors.New("runtime: unknown method")
)

// sep separates an extrinsic's key from its value. Extrinsics this runtime
// executes are plain "key=value" writes; anything else traps.
const sep = '='

// Trie is a content-addressed key/value snapshot store: every distinct set
// of (key, value) pairs has a root computed from its sorted contents, and a
// commit never mutates an existing snapshot — it writes a new one and
// returns its root. This stands in for the state trie a WASM runtime would
// otherwise commit to, the same way types.ComputeExtrinsicsRoot stands in
// for a transaction trie.
type Trie struct {
	db storage.Database
}

// NewTrie wraps db as a TrieStore. Snapshots are namespaced under a
// dedicated key prefix so they don't collide with chain data sharing the
// same underlying database.
func NewTrie(db storage.Database) *Trie {
	return &Trie{db: db}
}

func snapshotKey(root types.Hash) []byte {
	key := make([]byte, 0, 6+types.HashLength)
	key = append(key, "trie/s"...)
	key = append(key, root.Bytes()...)
	return key
}

// snapshot is the sorted (key, value) contents committed at a root, encoded
// as a simple length-prefixed list.
func encodeSnapshot(kv map[string][]byte) []byte {
	keys := sortedKeys(kv)
	buf := make([]byte, 0, 64*len(keys))
	buf = appendUint32(buf, uint32(len(keys)))
	for _, k := range keys {
		v := kv[k]
		buf = appendUint32(buf, uint32(len(k)))
		buf = append(buf, k...)
		buf = appendUint32(buf, uint32(len(v)))
		buf = append(buf, v...)
	}
	return buf
}

func decodeSnapshot(data []byte) (map[string][]byte, error) {
	if len(data) < 4 {
		return nil, errors.New("runtime: truncated snapshot")
	}
	n, off := readUint32(data, 0)
	kv := make(map[string][]byte, n)
	for i := uint32(0); i < n; i++ {
		if off+4 > len(data) {
			return nil, errors.New("runtime: truncated snapshot key length")
		}
		klen, next := readUint32(data, off)
		off = next
		if off+int(klen) > len(data) {
			return nil, errors.New("runtime: truncated snapshot key")
		}
		k := string(data[off : off+int(klen)])
		off += int(klen)

		if off+4 > len(data) {
			return nil, errors.New("runtime: truncated snapshot value length")
		}
		vlen, next := readUint32(data, off)
		off = next
		if off+int(vlen) > len(data) {
			return nil, errors.New("runtime: truncated snapshot value")
		}
		v := make([]byte, vlen)
		copy(v, data[off:off+int(vlen)])
		off += int(vlen)

		kv[k] = v
	}
	return kv, nil
}

func sortedKeys(kv map[string][]byte) []string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func readUint32(data []byte, off int) (uint32, int) {
	v := uint32(data[off])<<24 | uint32(data[off+1])<<16 | uint32(data[off+2])<<8 | uint32(data[off+3])
	return v, off + 4
}

// computeRoot hashes a snapshot's canonical encoding. The empty snapshot's
// root is the zero hash, matching the genesis convention in types.Header.
func computeRoot(kv map[string][]byte) types.Hash {
	if len(kv) == 0 {
		return types.Hash{}
	}
	return types.Hash(blake2b.Sum256(encodeSnapshot(kv)))
}

func (t *Trie) load(root types.Hash) (map[string][]byte, error) {
	if root.IsZero() {
		return map[string][]byte{}, nil
	}
	data, err := t.db.Get(snapshotKey(root))
	if err != nil {
		return nil, errors.Wrap(ErrUnknownRoot, err.Error())
	}
	return decodeSnapshot(data)
}

func (t *Trie) store(kv map[string][]byte) (types.Hash, error) {
	root := computeRoot(kv)
	if root.IsZero() {
		return root, nil
	}
	if err := t.db.Put(snapshotKey(root), encodeSnapshot(kv)); err != nil {
		return types.Hash{}, err
	}
	return root, nil
}

// Get reads key from the snapshot rooted at root.
func (t *Trie) Get(root types.Hash, key []byte) ([]byte, error) {
	kv, err := t.load(root)
	if err != nil {
		return nil, err
	}
	v, ok := kv[string(key)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

// Put writes key=value atop root and returns the resulting root.
func (t *Trie) Put(root types.Hash, key, value []byte) (types.Hash, error) {
	kv, err := t.load(root)
	if err != nil {
		return types.Hash{}, err
	}
	next := make(map[string][]byte, len(kv)+1)
	for k, v := range kv {
		next[k] = v
	}
	next[string(key)] = value
	return t.store(next)
}

// Delete removes key from root and returns the resulting root.
func (t *Trie) Delete(root types.Hash, key []byte) (types.Hash, error) {
	kv, err := t.load(root)
	if err != nil {
		return types.Hash{}, err
	}
	next := make(map[string][]byte, len(kv))
	for k, v := range kv {
		if k == string(key) {
			continue
		}
		next[k] = v
	}
	return t.store(next)
}

// CommitAt applies diff atop root in one step and returns the resulting
// root, without materialising the intermediate per-key roots Put/Delete
// would produce.
func (t *Trie) CommitAt(root types.Hash, diff ports.StateDiff) (types.Hash, error) {
	kv, err := t.load(root)
	if err != nil {
		return types.Hash{}, err
	}
	next := make(map[string][]byte, len(kv)+len(diff.Set))
	for k, v := range kv {
		next[k] = v
	}
	for k, v := range diff.Set {
		next[k] = v
	}
	for _, k := range diff.Delete {
		delete(next, k)
	}
	return t.store(next)
}

// Reference is a deterministic stand-in ports.Runtime: it has no WASM
// execution engine, no call environment, and no gas metering. It interprets
// each extrinsic as a literal "key=value" state write and exposes one
// read-only export, "state_get", for inherent/API queries. Anything beyond
// that is out of scope for this subsystem — see the package doc.
type Reference struct {
	trie *Trie
}

// NewReference constructs a Reference runtime over trie's snapshots.
func NewReference(trie *Trie) *Reference {
	return &Reference{trie: trie}
}

// ExecuteBlock applies block's extrinsics as key=value writes atop
// parentStateRoot and returns the resulting diff. A malformed extrinsic
// traps the whole block, classified as types.CategoryIntegrity.
func (r *Reference) ExecuteBlock(ctx context.Context, parentStateRoot types.Hash, block *types.Block) (ports.StateDiff, error) {
	kv, err := r.trie.load(parentStateRoot)
	if err != nil {
		return ports.StateDiff{}, err
	}

	diff := ports.StateDiff{Set: map[string][]byte{}}
	for _, ext := range block.Body {
		idx := indexByte(ext, sep)
		if idx < 0 {
			return ports.StateDiff{}, types.WrapError(types.CategoryIntegrity, ErrMalformedExtrinsic, ext.Hash().Hex())
		}
		key := string(ext[:idx])
		value := append([]byte{}, ext[idx+1:]...)
		diff.Set[key] = value
		kv[key] = value
	}
	return diff, nil
}

// Call serves the single "state_get" export: args is a raw key, the
// response is its value under stateRoot.
func (r *Reference) Call(ctx context.Context, stateRoot types.Hash, method string, args []byte) ([]byte, error) {
	if method != "state_get" {
		return nil, errors.Wrap(ErrUnknownMethod, method)
	}
	return r.trie.Get(stateRoot, args)
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
