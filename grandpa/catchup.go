package grandpa

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vanguardchain/vanguard/types"
)

// NeighborPacket is gossiped periodically so peers can detect they have
// fallen behind on rounds without waiting for the liveness timeout to fire.
type NeighborPacket struct {
	Round         uint64
	SetID         uint64
	LastFinalized types.BlockInfo
}

// NeighborPacket returns the packet describing this voter's current
// position, for periodic broadcast.
func (v *Voter) NeighborPacket() NeighborPacket {
	v.mu.Lock()
	defer v.mu.Unlock()
	np := NeighborPacket{LastFinalized: v.lastFinalized}
	if v.current != nil {
		np.Round = v.current.number
		np.SetID = v.current.set.SetID
	}
	return np
}

// CatchUpRequest asks a peer believed to be ahead for the full vote set of
// one of its completed rounds.
type CatchUpRequest struct {
	Round uint64
	SetID uint64
}

// CatchUpResponse carries every prevote and precommit a peer recorded for
// the requested round, letting the requester reconstruct its state without
// replaying the whole round live.
type CatchUpResponse struct {
	Round      uint64
	SetID      uint64
	Base       types.BlockInfo
	Prevotes   []types.SignedVote
	Precommits []types.SignedVote
}

// OnNeighborPacket compares pkt against this voter's own position and
// returns a catch-up request when the peer is far enough ahead (or this
// voter has gone stale) that replaying live traffic would take too long.
func (v *Voter) OnNeighborPacket(pkt NeighborPacket) (CatchUpRequest, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return CatchUpRequest{}, false
	}
	behind := pkt.SetID > v.current.set.SetID ||
		(pkt.SetID == v.current.set.SetID && pkt.Round > v.current.number+1)
	stale := time.Since(v.lastActivity) > v.livenessTimeout
	if !behind && !stale {
		return CatchUpRequest{}, false
	}
	return CatchUpRequest{Round: pkt.Round, SetID: pkt.SetID}, true
}

// BuildCatchUpResponse answers req with the full vote set of the requested
// round, if it is the voter's current round. Historical (already-completed
// and pruned) rounds are not retained, matching the scope §4.7 fixes for
// GrandpaVoter's in-memory state.
func (v *Voter) BuildCatchUpResponse(req CatchUpRequest) (CatchUpResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	r := v.current
	if r == nil || r.number != req.Round || r.set.SetID != req.SetID {
		return CatchUpResponse{}, errors.New("grandpa: round not available for catch-up")
	}
	resp := CatchUpResponse{Round: r.number, SetID: r.set.SetID, Base: r.base}
	for _, vote := range r.prevotes {
		resp.Prevotes = append(resp.Prevotes, vote)
	}
	for _, vote := range r.precommits {
		resp.Precommits = append(resp.Precommits, vote)
	}
	return resp, nil
}

// ApplyCatchUpResponse folds every vote in resp into the current round via
// OnVote, fast-forwarding this voter to the sender's state.
func (v *Voter) ApplyCatchUpResponse(resp CatchUpResponse) ([]EquivocationReport, error) {
	var reports []EquivocationReport
	for _, vote := range resp.Prevotes {
		rs, err := v.OnVote(vote)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rs...)
	}
	for _, vote := range resp.Precommits {
		rs, err := v.OnVote(vote)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rs...)
	}
	return reports, nil
}
