package storage

import "encoding/binary"

// Key layout for the persistent store. Block-derived records are keyed by a
// single-byte prefix over (number, hash) so range scans over a height stay
// contiguous; the consensus singletons use their literal ":namespace:name"
// key, matching the fixed keys the authority set, GRANDPA, and BABE
// components persist against.
var (
	headerPrefix        = []byte("h") // h + num(8BE) + hash -> header
	bodyPrefix          = []byte("b") // b + num(8BE) + hash -> body
	justificationPrefix = []byte("j") // j + num(8BE) + hash -> justification
	canonicalPrefix     = []byte("c") // c + num(8BE) -> canonical hash

	keyAuthRoot  = []byte(":auth:root")
	keyAuthSet   = []byte(":auth:set")
	keyGrandpa   = []byte(":grandpa:state")
	keyBabeLast  = []byte(":babe:last")
	babeEpochPfx = []byte(":babe:epoch:")
)

// EncodeBlockNumber encodes a block number as an 8-byte big-endian value, so
// lexicographic key order matches height order.
func EncodeBlockNumber(number uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, number)
	return enc
}

// HeaderKey = headerPrefix + num + hash.
func HeaderKey(number uint64, hash [32]byte) []byte {
	return append(append(append([]byte{}, headerPrefix...), EncodeBlockNumber(number)...), hash[:]...)
}

// BodyKey = bodyPrefix + num + hash.
func BodyKey(number uint64, hash [32]byte) []byte {
	return append(append(append([]byte{}, bodyPrefix...), EncodeBlockNumber(number)...), hash[:]...)
}

// JustificationKey = justificationPrefix + num + hash.
func JustificationKey(number uint64, hash [32]byte) []byte {
	return append(append(append([]byte{}, justificationPrefix...), EncodeBlockNumber(number)...), hash[:]...)
}

// CanonicalKey = canonicalPrefix + num, mapping a height to its canonical hash.
func CanonicalKey(number uint64) []byte {
	return append(append([]byte{}, canonicalPrefix...), EncodeBlockNumber(number)...)
}

// AuthRootKey is the singleton key for the AuthoritySetManager's
// ScheduleNode tree root: ":auth:root".
func AuthRootKey() []byte { return keyAuthRoot }

// AuthSetKey is the singleton key for the current AuthoritySet: ":auth:set".
func AuthSetKey() []byte { return keyAuthSet }

// GrandpaStateKey is the singleton key for the last completed GRANDPA round:
// ":grandpa:state".
func GrandpaStateKey() []byte { return keyGrandpa }

// BabeEpochKey = ":babe:epoch:<u64>", the EpochDescriptor for the given
// epoch index.
func BabeEpochKey(index uint64) []byte {
	return append(append([]byte{}, babeEpochPfx...), EncodeBlockNumber(index)...)
}

// BabeLastKey is the singleton key for the last-known epoch anchor:
// ":babe:last".
func BabeLastKey() []byte { return keyBabeLast }
