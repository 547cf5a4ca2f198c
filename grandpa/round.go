package grandpa

import (
	"time"

	"github.com/vanguardchain/vanguard/types"
)

// Phase is a round's position in the Proposed -> Prevoted -> Precommitted
// -> Completable -> Finalizing -> Completed lifecycle described by §4.7.
type Phase int

const (
	PhaseProposed Phase = iota
	PhasePrevoted
	PhasePrecommitted
	PhaseCompletable
	PhaseFinalizing
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseProposed:
		return "proposed"
	case PhasePrevoted:
		return "prevoted"
	case PhasePrecommitted:
		return "precommitted"
	case PhaseCompletable:
		return "completable"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// roundDuration (D) is the average time the round machine budgets for a
// full prevote+precommit exchange; prevote and precommit each get D/2.
const roundDuration = 3333 * time.Millisecond

// round holds the mutable state of one GRANDPA voting round.
type round struct {
	number uint64
	set    types.AuthoritySet
	base   types.BlockInfo

	phase Phase

	prevotes   map[types.AuthorityID]types.SignedVote
	precommits map[types.AuthorityID]types.SignedVote

	prevoteGhost   types.BlockInfo
	precommitGhost types.BlockInfo

	startedAt time.Time
}

func newRound(number uint64, set types.AuthoritySet, base types.BlockInfo, startedAt time.Time) *round {
	return &round{
		number:     number,
		set:        set,
		base:       base,
		phase:      PhaseProposed,
		prevotes:   map[types.AuthorityID]types.SignedVote{},
		precommits: map[types.AuthorityID]types.SignedVote{},
		prevoteGhost:   base,
		precommitGhost: base,
		startedAt:  startedAt,
	}
}

// prevoteDeadline is the wall-clock point at which a member should cast its
// prevote even if it hasn't observed a completable round yet.
func (r *round) prevoteDeadline() time.Time { return r.startedAt.Add(roundDuration / 2) }

// precommitDeadline is the wall-clock point at which a member should cast
// its precommit: a full round duration D after the round started.
func (r *round) precommitDeadline() time.Time { return r.startedAt.Add(roundDuration) }

func (r *round) weights() map[types.AuthorityID]uint64 {
	w := make(map[types.AuthorityID]uint64, len(r.set.Authorities))
	for _, a := range r.set.Authorities {
		w[a.ID] = a.Weight
	}
	return w
}
