package types

import (
	"sync/atomic"

	"golang.org/x/crypto/blake2b"
)

// Header is a block header. Per the data model, a non-genesis header's
// Digests slice ends with exactly one DigestSeal entry; everything before it
// is pre-runtime and consensus digests in the order they were produced.
type Header struct {
	ParentHash      Hash
	Number          BlockNumber
	StateRoot       Hash
	ExtrinsicsRoot  Hash
	Digests         []Digest

	hash atomic.Pointer[Hash]
}

// Seal returns the trailing seal digest and true, or the zero Digest and
// false if the header carries none (only valid for genesis).
func (h *Header) Seal() (Digest, bool) {
	if len(h.Digests) == 0 {
		return Digest{}, false
	}
	last := h.Digests[len(h.Digests)-1]
	if !last.IsSeal() {
		return Digest{}, false
	}
	return last, true
}

// WithoutSeal returns a copy of the header with its trailing seal digest
// stripped, as required before handing the block to the runtime for
// execution (step 4 of the import pipeline).
func (h *Header) WithoutSeal() *Header {
	cp := *h
	cp.hash = atomic.Pointer[Hash]{}
	if seal, ok := h.Seal(); ok {
		cp.Digests = append([]Digest(nil), h.Digests[:len(h.Digests)-1]...)
		_ = seal
	} else {
		cp.Digests = append([]Digest(nil), h.Digests...)
	}
	return &cp
}

// PreSealDigests returns every digest except the trailing seal, i.e. the
// items the import pipeline must dispatch to AuthoritySetManager.
func (h *Header) PreSealDigests() []Digest {
	if _, ok := h.Seal(); ok {
		return h.Digests[:len(h.Digests)-1]
	}
	return h.Digests
}

// Hash returns the Blake2b-256 digest of the canonical header encoding,
// cached after first computation. The encoding always excludes a trailing
// seal digest, so a header's identity is fixed the moment its pre-seal
// digests are, regardless of whether Hash() is first called before or
// after the seal is appended.
func (h *Header) Hash() Hash {
	if cached := h.hash.Load(); cached != nil {
		return *cached
	}
	digest := blake2b.Sum256(h.encode())
	hash := Hash(digest)
	h.hash.Store(&hash)
	return hash
}

// Info returns the (number, hash) pair identifying this header.
func (h *Header) Info() BlockInfo {
	return BlockInfo{Number: h.Number, Hash: h.Hash()}
}

func (h *Header) encode() []byte {
	digests := h.PreSealDigests()
	buf := make([]byte, 0, 72)
	buf = append(buf, h.ParentHash[:]...)
	buf = appendUint64(buf, uint64(h.Number))
	buf = append(buf, h.StateRoot[:]...)
	buf = append(buf, h.ExtrinsicsRoot[:]...)
	buf = appendUint32(buf, uint32(len(digests)))
	for _, d := range digests {
		buf = append(buf, byte(d.Kind))
		buf = append(buf, d.Engine[:]...)
		buf = appendUint32(buf, uint32(len(d.Data)))
		buf = append(buf, d.Data...)
	}
	return buf
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	for i := 3; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return append(buf, b[:]...)
}
