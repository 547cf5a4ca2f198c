// Package crypto is the one concrete implementation of ports.Crypto this
// repository ships: signatures over a local ed25519 keypair, plus a VRF
// built the way a deterministic signature scheme allows — the proof is
// the signature itself and the output is its hash, so anyone holding the
// public key can verify the output was produced honestly without ever
// seeing the private key. BABE and GRANDPA only ever talk to the
// ports.Crypto interface; this package is an oracle they're handed, not a
// dependency they import directly.
package crypto

import (
	"crypto/ed25519"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/vanguardchain/vanguard/types"
)

var ErrInvalidKeySize = errors.New("crypto: invalid ed25519 key size")

// LocalSigner implements ports.Crypto against a single local authoring
// keypair, matching the scope of one authority running one instance of
// this node.
type LocalSigner struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
	id      types.AuthorityID
}

// NewLocalSigner wraps an existing ed25519 keypair.
func NewLocalSigner(public ed25519.PublicKey, private ed25519.PrivateKey) (*LocalSigner, error) {
	if len(public) != ed25519.PublicKeySize || len(private) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeySize
	}
	var id types.AuthorityID
	copy(id[:], public)
	return &LocalSigner{public: public, private: private, id: id}, nil
}

// GenerateLocalSigner creates a fresh random keypair, for development nodes
// and tests that don't need a persisted identity across restarts.
func GenerateLocalSigner() (*LocalSigner, error) {
	public, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(public, private)
}

// VerifySignature implements ports.Crypto.
func (s *LocalSigner) VerifySignature(id types.AuthorityID, msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(id[:]), msg, sig)
}

// Sign implements ports.Crypto.
func (s *LocalSigner) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(s.private, msg), nil
}

// VRFProve implements ports.Crypto. ed25519 signatures are deterministic,
// so a signature over msg is itself a proof that only the holder of the
// private key could have produced; its hash is taken as the VRF output.
func (s *LocalSigner) VRFProve(msg []byte) (output [32]byte, proof [64]byte, err error) {
	sig := ed25519.Sign(s.private, msg)
	copy(proof[:], sig)
	output = blake2b.Sum256(sig)
	return output, proof, nil
}

// VRFVerify implements ports.Crypto: proof must be a valid ed25519
// signature over msg under id, and output must be its hash.
func (s *LocalSigner) VRFVerify(id types.AuthorityID, msg []byte, output [32]byte, proof [64]byte) bool {
	if !ed25519.Verify(ed25519.PublicKey(id[:]), msg, proof[:]) {
		return false
	}
	return blake2b.Sum256(proof[:]) == output
}

// LocalAuthorityID implements ports.Crypto.
func (s *LocalSigner) LocalAuthorityID() types.AuthorityID {
	return s.id
}
