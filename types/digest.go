package types

import (
	"encoding/binary"
	"errors"
)

// ConsensusEngineID tags which consensus engine a digest item belongs to,
// mirroring the four-byte engine IDs used on the wire (e.g. "BABE", "FRNK").
type ConsensusEngineID [4]byte

var (
	EngineBABE    = ConsensusEngineID{'B', 'A', 'B', 'E'}
	EngineGRANDPA = ConsensusEngineID{'F', 'R', 'N', 'K'}
)

// DigestKind discriminates the role a Digest item plays in a header's digest
// log. Per the data model, a non-genesis header's digest log ends with
// exactly one Seal.
type DigestKind byte

const (
	DigestPreRuntime DigestKind = iota
	DigestConsensus
	DigestSeal
)

// Digest is one entry in a header's digest log. PreRuntime carries the BABE
// slot claim, Consensus carries authority-set change announcements, and Seal
// carries the final signature over the sealed header.
type Digest struct {
	Kind   DigestKind
	Engine ConsensusEngineID
	Data   []byte
}

// IsSeal reports whether this digest is the trailing consensus seal.
func (d Digest) IsSeal() bool { return d.Kind == DigestSeal }

// BABEPreDigest is the slot-claim payload carried by a DigestPreRuntime
// digest under EngineBABE.
type BABEPreDigest struct {
	Slot            SlotNumber
	AuthorityIndex  uint32
	VRFOutput       [32]byte
	VRFProof        [64]byte
}

// Encode serializes the pre-digest to its wire form.
func (p BABEPreDigest) Encode() []byte {
	buf := make([]byte, 8+4+32+64)
	binary.BigEndian.PutUint64(buf[0:8], uint64(p.Slot))
	binary.BigEndian.PutUint32(buf[8:12], p.AuthorityIndex)
	copy(buf[12:44], p.VRFOutput[:])
	copy(buf[44:108], p.VRFProof[:])
	return buf
}

// DecodeBABEPreDigest parses the wire form produced by Encode.
func DecodeBABEPreDigest(b []byte) (BABEPreDigest, error) {
	if len(b) != 108 {
		return BABEPreDigest{}, errors.New("types: malformed babe pre-digest")
	}
	var p BABEPreDigest
	p.Slot = SlotNumber(binary.BigEndian.Uint64(b[0:8]))
	p.AuthorityIndex = binary.BigEndian.Uint32(b[8:12])
	copy(p.VRFOutput[:], b[12:44])
	copy(p.VRFProof[:], b[44:108])
	return p, nil
}

// ScheduledActionKind discriminates the variants of ScheduledAction.
type ScheduledActionKind byte

const (
	ActionEnactAt ScheduledActionKind = iota
	ActionForceAt
	ActionDisable
	ActionPause
	ActionResume
)

// ScheduledAction is one pending mutation of an authority set, carried in a
// DigestConsensus digest and held by a ScheduleNode until its activation
// block is reached.
type ScheduledAction struct {
	Kind         ScheduledActionKind
	ActivateAt   BlockNumber // meaningful for EnactAt, ForceAt, Pause, Resume
	NewSet       AuthoritySet // meaningful for EnactAt, ForceAt
	DisabledIdx  uint32       // meaningful for Disable
}

// Encode serializes a consensus digest payload carrying a single
// ScheduledAction, for embedding in Digest.Data.
func (a ScheduledAction) Encode() []byte {
	buf := []byte{byte(a.Kind)}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(a.ActivateAt))
	buf = append(buf, n[:]...)
	switch a.Kind {
	case ActionEnactAt, ActionForceAt:
		buf = append(buf, a.NewSet.Encode()...)
	case ActionDisable:
		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], a.DisabledIdx)
		buf = append(buf, idx[:]...)
	}
	return buf
}

// DecodeScheduledAction parses the wire form produced by Encode.
func DecodeScheduledAction(b []byte) (ScheduledAction, error) {
	if len(b) < 9 {
		return ScheduledAction{}, errors.New("types: malformed scheduled action")
	}
	a := ScheduledAction{
		Kind:       ScheduledActionKind(b[0]),
		ActivateAt: BlockNumber(binary.BigEndian.Uint64(b[1:9])),
	}
	rest := b[9:]
	switch a.Kind {
	case ActionEnactAt, ActionForceAt:
		set, err := DecodeAuthoritySet(rest)
		if err != nil {
			return ScheduledAction{}, err
		}
		a.NewSet = set
	case ActionDisable:
		if len(rest) < 4 {
			return ScheduledAction{}, errors.New("types: malformed disable action")
		}
		a.DisabledIdx = binary.BigEndian.Uint32(rest[0:4])
	}
	return a, nil
}

// NextEpochDescriptor is the digest payload that announces the descriptor
// for the epoch following the one containing the block that carries it.
type NextEpochDescriptor struct {
	Authorities []Authority
	Randomness  [32]byte
}

// Encode serializes the descriptor for embedding in Digest.Data.
func (d NextEpochDescriptor) Encode() []byte {
	set := AuthoritySet{Authorities: d.Authorities}
	buf := set.Encode()
	buf = append(buf, d.Randomness[:]...)
	return buf
}

// DecodeNextEpochDescriptor parses the wire form produced by Encode.
func DecodeNextEpochDescriptor(b []byte) (NextEpochDescriptor, error) {
	if len(b) < 32 {
		return NextEpochDescriptor{}, errors.New("types: malformed next-epoch descriptor")
	}
	setBytes, randBytes := b[:len(b)-32], b[len(b)-32:]
	set, err := DecodeAuthoritySet(setBytes)
	if err != nil {
		return NextEpochDescriptor{}, err
	}
	var d NextEpochDescriptor
	d.Authorities = set.Authorities
	copy(d.Randomness[:], randBytes)
	return d, nil
}
