package grandpa

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/vanguardchain/vanguard/types"
)

// encodeJustification serializes a Justification for storage.GrandpaStateKey.
func encodeJustification(j types.Justification) []byte {
	buf := make([]byte, 0, 8+types.HashLength+4)
	buf = appendU64(buf, uint64(j.Target.Number))
	buf = append(buf, j.Target.Hash[:]...)
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(j.Precommits)))
	buf = append(buf, count[:]...)
	for _, vote := range j.Precommits {
		buf = append(buf, vote.VoterID[:]...)
		buf = appendU64(buf, uint64(vote.Target.Number))
		buf = append(buf, vote.Target.Hash[:]...)
		var siglen [4]byte
		binary.BigEndian.PutUint32(siglen[:], uint32(len(vote.Signature)))
		buf = append(buf, siglen[:]...)
		buf = append(buf, vote.Signature...)
	}
	return buf
}

// decodeJustification parses the wire form produced by encodeJustification,
// reattaching the fixed Round/SetID/Kind fields every precommit in a single
// justification shares.
func decodeJustification(b []byte, round, setID uint64) (types.Justification, error) {
	if len(b) < 8+types.HashLength+4 {
		return types.Justification{}, errors.New("grandpa: truncated justification")
	}
	var j types.Justification
	j.Target.Number = types.BlockNumber(binary.BigEndian.Uint64(b[0:8]))
	copy(j.Target.Hash[:], b[8:8+types.HashLength])
	off := 8 + types.HashLength
	count := binary.BigEndian.Uint32(b[off : off+4])
	off += 4

	for i := uint32(0); i < count; i++ {
		if off+types.AuthorityIDLength+8+types.HashLength+4 > len(b) {
			return types.Justification{}, errors.New("grandpa: truncated precommit entry")
		}
		var vote types.SignedVote
		vote.Kind = types.VotePrecommit
		vote.Round = round
		vote.SetID = setID
		copy(vote.VoterID[:], b[off:off+types.AuthorityIDLength])
		off += types.AuthorityIDLength
		vote.Target.Number = types.BlockNumber(binary.BigEndian.Uint64(b[off : off+8]))
		off += 8
		copy(vote.Target.Hash[:], b[off:off+types.HashLength])
		off += types.HashLength
		siglen := binary.BigEndian.Uint32(b[off : off+4])
		off += 4
		if off+int(siglen) > len(b) {
			return types.Justification{}, errors.New("grandpa: truncated precommit signature")
		}
		vote.Signature = append([]byte(nil), b[off:off+int(siglen)]...)
		off += int(siglen)
		j.Precommits = append(j.Precommits, vote)
	}
	return j, nil
}

// VerifyJustification checks that every precommit in j is a member of set
// and signs over (round, setID, precommit, j.Target), and that the combined
// weight clears set's supermajority threshold.
func VerifyJustification(crypto interface {
	VerifySignature(id types.AuthorityID, msg, sig []byte) bool
}, j types.Justification, round, setID uint64, set types.AuthoritySet) error {
	seen := map[types.AuthorityID]bool{}
	for _, vote := range j.Precommits {
		if set.IndexOf(vote.VoterID) < 0 {
			return errors.Wrap(types.ErrInvalidJustification, "grandpa: precommit from non-member")
		}
		if seen[vote.VoterID] {
			return errors.Wrap(types.ErrInvalidJustification, "grandpa: duplicate voter in justification")
		}
		seen[vote.VoterID] = true
		msg := voteMessage(round, setID, types.VotePrecommit, j.Target)
		if !crypto.VerifySignature(vote.VoterID, msg, vote.Signature) {
			return errors.Wrap(types.ErrInvalidJustification, "grandpa: bad precommit signature")
		}
	}
	if j.Weight(set) < set.Threshold() {
		return errors.Wrap(types.ErrInvalidJustification, "grandpa: insufficient precommit weight")
	}
	return nil
}
