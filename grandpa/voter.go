// Package grandpa implements the GRANDPA finality gadget: a round-based
// voter that runs prevote/precommit exchanges over the block tree's vote
// graph and finalizes once a supermajority precommit-GHOST is reached.
package grandpa

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/storage"
	"github.com/vanguardchain/vanguard/types"
)

// Finalizer is the structural collaborator a completed round delivers its
// justification to. Satisfied by blocktree.Tree.Finalize plus whatever the
// caller wires alongside it (authority.Manager.OnFinalize, epoch
// notification); Voter only calls the chain-level move itself.
type Finalizer interface {
	Finalize(block types.BlockInfo, db storage.Database) error
}

// Broadcaster gossips an outbound vote to peers.
type Broadcaster interface {
	BroadcastVote(ctx context.Context, vote types.SignedVote) error
}

// FinalizationSink is notified whenever a round completes, after
// Finalizer.Finalize has already moved and pruned the block tree, so the
// caller can fold the justification into AuthoritySetManager.OnFinalize.
type FinalizationSink interface {
	OnFinalized(justification types.Justification) error
}

// EquivocationReport names a voter who signed two distinct votes of the
// same kind in the same round and set.
type EquivocationReport struct {
	Round    uint64
	SetID    uint64
	Kind     types.VoteKind
	Offender types.AuthorityID
	First    types.SignedVote
	Second   types.SignedVote
}

// Voter drives the GRANDPA round state machine described by §4.7.
type Voter struct {
	mu sync.Mutex

	db       storage.Database
	crypto   ports.Crypto
	chain    ChainView
	finalize Finalizer
	gossip   Broadcaster
	sink     FinalizationSink

	livenessTimeout time.Duration

	current       *round
	lastActivity  time.Time
	lastFinalized types.BlockInfo
}

// NewVoter constructs a Voter. livenessTimeout <= 0 defaults to 20s, the
// interval of silence after which OnNeighborPacket starts recommending a
// catch-up request.
func NewVoter(db storage.Database, crypto ports.Crypto, chain ChainView, finalize Finalizer, gossip Broadcaster, sink FinalizationSink, livenessTimeout time.Duration) *Voter {
	if livenessTimeout <= 0 {
		livenessTimeout = 20 * time.Second
	}
	return &Voter{
		db:              db,
		crypto:          crypto,
		chain:           chain,
		finalize:        finalize,
		gossip:          gossip,
		sink:            sink,
		livenessTimeout: livenessTimeout,
	}
}

// StartRound begins round `number` voting over `set`, based at `base` (the
// prior round's finalized target, or genesis for round 0).
func (v *Voter) StartRound(number uint64, set types.AuthoritySet, base types.BlockInfo) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = newRound(number, set, base, time.Now())
	v.lastActivity = v.current.startedAt
	v.lastFinalized = base
}

// CastPrevote signs and broadcasts a prevote for target if the local key is
// a member of the current round's voter set and hasn't already voted.
func (v *Voter) CastPrevote(ctx context.Context, target types.BlockInfo) error {
	return v.castVote(ctx, types.VotePrevote, target)
}

// CastPrecommit signs and broadcasts a precommit for target.
func (v *Voter) CastPrecommit(ctx context.Context, target types.BlockInfo) error {
	return v.castVote(ctx, types.VotePrecommit, target)
}

func (v *Voter) castVote(ctx context.Context, kind types.VoteKind, target types.BlockInfo) error {
	v.mu.Lock()
	r := v.current
	if r == nil {
		v.mu.Unlock()
		return errors.New("grandpa: no active round")
	}
	local := v.crypto.LocalAuthorityID()
	if r.set.IndexOf(local) < 0 {
		v.mu.Unlock()
		return nil // not a voting member this round
	}
	cast := r.prevotes
	if kind == types.VotePrecommit {
		cast = r.precommits
	}
	if _, voted := cast[local]; voted {
		v.mu.Unlock()
		return nil // already voted this kind in this round
	}
	msg := voteMessage(r.number, r.set.SetID, kind, target)
	v.mu.Unlock()

	sig, err := v.crypto.Sign(msg)
	if err != nil {
		return err
	}
	vote := types.SignedVote{Kind: kind, Round: r.number, SetID: r.set.SetID, Target: target, VoterID: local, Signature: sig}
	if _, err := v.OnVote(vote); err != nil {
		return err
	}
	if v.gossip != nil {
		return v.gossip.BroadcastVote(ctx, vote)
	}
	return nil
}

// OnVote records an incoming signed vote, verifying it and checking for
// equivocation against any vote already recorded for that voter in this
// round. It advances the round's phase and, once the precommit-GHOST
// clears the set's supermajority threshold, finalizes the round.
func (v *Voter) OnVote(vote types.SignedVote) ([]EquivocationReport, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	r := v.current
	if r == nil || vote.Round != r.number || vote.SetID != r.set.SetID {
		return nil, nil // stale or future vote; caller may buffer for catch-up
	}
	if r.set.IndexOf(vote.VoterID) < 0 {
		return nil, types.ErrInvalidSignature
	}
	msg := voteMessage(vote.Round, vote.SetID, vote.Kind, vote.Target)
	if !v.crypto.VerifySignature(vote.VoterID, msg, vote.Signature) {
		return nil, types.ErrInvalidSignature
	}
	if !v.chain.KnownBlock(vote.Target) {
		return nil, errors.Wrap(types.ErrUnknownHeader, "grandpa: vote targets unknown block")
	}

	var reports []EquivocationReport
	var bucket map[types.AuthorityID]types.SignedVote
	switch vote.Kind {
	case types.VotePrevote:
		bucket = r.prevotes
	case types.VotePrecommit:
		bucket = r.precommits
	default:
		return nil, nil // primary-propose votes don't drive the vote graph
	}

	if existing, ok := bucket[vote.VoterID]; ok {
		if existing.Target != vote.Target {
			reports = append(reports, EquivocationReport{
				Round: r.number, SetID: r.set.SetID, Kind: vote.Kind,
				Offender: vote.VoterID, First: existing, Second: vote,
			})
		}
		return reports, nil
	}
	bucket[vote.VoterID] = vote
	v.lastActivity = time.Now()

	v.advanceLocked()
	return reports, nil
}

// advanceLocked recomputes the vote graph and moves the round through its
// phases; called with v.mu held.
func (v *Voter) advanceLocked() {
	r := v.current
	weights := r.weights()
	threshold := r.set.Threshold()

	if len(r.prevotes) > 0 {
		r.prevoteGhost = ghost(v.chain, r.base, r.prevotes, weights, threshold)
		if r.phase < PhasePrevoted && totalWeight(r.prevotes, weights) >= threshold {
			r.phase = PhasePrevoted
		}
	}
	if r.phase >= PhasePrevoted && len(r.precommits) > 0 {
		r.precommitGhost = ghost(v.chain, r.prevoteGhost, r.precommits, weights, threshold)
		if totalWeight(r.precommits, weights) >= threshold {
			if r.phase < PhasePrecommitted {
				r.phase = PhasePrecommitted
			}
			// Simplification: a round is treated as completable the
			// instant its precommit-GHOST clears the supermajority
			// threshold, rather than proving no further vote could move
			// it — see DESIGN.md's completability note.
			r.phase = PhaseCompletable
			v.finalizeLocked()
		}
	}
}

func (v *Voter) finalizeLocked() {
	r := v.current
	if r.phase == PhaseCompleted {
		return
	}
	r.phase = PhaseFinalizing

	precommits := make([]types.SignedVote, 0, len(r.precommits))
	for _, vote := range r.precommits {
		precommits = append(precommits, vote)
	}
	justification := types.Justification{Target: r.precommitGhost, Precommits: precommits}
	if justification.Weight(r.set) < r.set.Threshold() {
		r.phase = PhaseCompletable
		return
	}

	if err := v.finalize.Finalize(r.precommitGhost, v.db); err != nil {
		r.phase = PhaseCompletable
		return
	}
	if err := v.persistLocked(justification); err != nil {
		r.phase = PhaseCompletable
		return
	}
	v.lastFinalized = r.precommitGhost
	r.phase = PhaseCompleted

	if v.sink != nil {
		_ = v.sink.OnFinalized(justification)
	}
}

func (v *Voter) persistLocked(j types.Justification) error {
	return v.db.Put(storage.GrandpaStateKey(), encodeJustification(j))
}

// Phase returns the current round's phase.
func (v *Voter) Phase() Phase {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return PhaseCompleted
	}
	return v.current.phase
}

// LastFinalized returns the most recent block this voter finalized.
func (v *Voter) LastFinalized() types.BlockInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastFinalized
}

// Stale reports whether no vote has been processed within the configured
// liveness timeout, i.e. this voter should request a catch-up.
func (v *Voter) Stale() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return false
	}
	return time.Since(v.lastActivity) > v.livenessTimeout
}

func voteMessage(round, setID uint64, kind types.VoteKind, target types.BlockInfo) []byte {
	buf := make([]byte, 0, 8+8+1+8+types.HashLength)
	buf = appendU64(buf, round)
	buf = appendU64(buf, setID)
	buf = append(buf, byte(kind))
	buf = appendU64(buf, uint64(target.Number))
	buf = append(buf, target.Hash[:]...)
	return buf
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
