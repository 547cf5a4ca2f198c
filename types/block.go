package types

import "golang.org/x/crypto/blake2b"

// Extrinsic is an opaque, already-encoded transaction. Its identity is the
// Blake2b-256 hash of its bytes.
type Extrinsic []byte

// Hash returns the Blake2b-256 digest identifying this extrinsic.
func (e Extrinsic) Hash() Hash {
	return Hash(blake2b.Sum256(e))
}

// Block pairs a header with its ordered body. The header's ExtrinsicsRoot
// must equal ComputeExtrinsicsRoot(Body).
type Block struct {
	Header *Header
	Body   []Extrinsic
}

// ComputeExtrinsicsRoot folds the body into a single root via pairwise
// Blake2b-256 hashing, standing in for the trie-root the TrieStore oracle
// would otherwise produce over the same ordered leaves.
func ComputeExtrinsicsRoot(body []Extrinsic) Hash {
	if len(body) == 0 {
		return Hash{}
	}
	layer := make([]Hash, len(body))
	for i, e := range body {
		layer[i] = e.Hash()
	}
	for len(layer) > 1 {
		next := make([]Hash, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			if i+1 == len(layer) {
				next = append(next, layer[i])
				continue
			}
			var buf [2 * HashLength]byte
			copy(buf[:HashLength], layer[i][:])
			copy(buf[HashLength:], layer[i+1][:])
			next = append(next, Hash(blake2b.Sum256(buf[:])))
		}
		layer = next
	}
	return layer[0]
}
