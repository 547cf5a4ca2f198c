package types

import (
	"encoding/binary"
	"errors"
)

// AuthorityIDLength is the width of a BABE/GRANDPA public key (Sr25519 or
// Ed25519); verification of signatures against it is handled by the crypto
// oracle, not this package.
const AuthorityIDLength = 32

// AuthorityID identifies a validator by public key bytes. It is unique
// within a given AuthoritySet.
type AuthorityID [AuthorityIDLength]byte

// Bytes returns the byte slice view of the id.
func (a AuthorityID) Bytes() []byte { return a[:] }

// Authority pairs a validator identity with its voting weight. Weight must
// be at least 1.
type Authority struct {
	ID     AuthorityID
	Weight uint64
}

// AuthoritySet is an ordered list of authorities plus the monotonically
// increasing set identifier assigned when the set was enacted.
type AuthoritySet struct {
	Authorities []Authority
	SetID       uint64
}

// TotalWeight sums the weight of every authority in the set.
func (s AuthoritySet) TotalWeight() uint64 {
	var total uint64
	for _, a := range s.Authorities {
		total += a.Weight
	}
	return total
}

// Threshold returns the supermajority weight required for a justification:
// floor(2*total/3) + 1.
func (s AuthoritySet) Threshold() uint64 {
	total := s.TotalWeight()
	return (2*total)/3 + 1
}

// IndexOf returns the position of id within the set, or -1 if absent.
func (s AuthoritySet) IndexOf(id AuthorityID) int {
	for i, a := range s.Authorities {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe for independent mutation (e.g. applying a
// Disable action to a local copy without affecting the stored set).
func (s AuthoritySet) Clone() AuthoritySet {
	cp := AuthoritySet{SetID: s.SetID, Authorities: make([]Authority, len(s.Authorities))}
	copy(cp.Authorities, s.Authorities)
	return cp
}

// Encode serializes the set to its wire form.
func (s AuthoritySet) Encode() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, s.SetID)
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(s.Authorities)))
	buf = append(buf, count[:]...)
	for _, a := range s.Authorities {
		buf = append(buf, a.ID[:]...)
		var w [8]byte
		binary.BigEndian.PutUint64(w[:], a.Weight)
		buf = append(buf, w[:]...)
	}
	return buf
}

// DecodeAuthoritySet parses the wire form produced by Encode.
func DecodeAuthoritySet(b []byte) (AuthoritySet, error) {
	if len(b) < 12 {
		return AuthoritySet{}, errors.New("types: malformed authority set")
	}
	setID := binary.BigEndian.Uint64(b[0:8])
	count := binary.BigEndian.Uint32(b[8:12])
	rest := b[12:]
	const entry = AuthorityIDLength + 8
	if len(rest) != int(count)*entry {
		return AuthoritySet{}, errors.New("types: authority set length mismatch")
	}
	out := AuthoritySet{SetID: setID, Authorities: make([]Authority, count)}
	for i := uint32(0); i < count; i++ {
		off := int(i) * entry
		var id AuthorityID
		copy(id[:], rest[off:off+AuthorityIDLength])
		weight := binary.BigEndian.Uint64(rest[off+AuthorityIDLength : off+entry])
		out.Authorities[i] = Authority{ID: id, Weight: weight}
	}
	return out, nil
}
