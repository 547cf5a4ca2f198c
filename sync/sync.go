// Package sync implements the Synchronizer described by §4.9: when the
// import pipeline reports a gap (parent unknown), fetch a block range from
// a peer, stream it through the importer, and iterate until the target is
// reached, the peer runs dry, or an error stops the walk.
package sync

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/vanguardchain/vanguard/log"
	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/types"
)

// Sync states.
const (
	StateIdle    uint32 = 0
	StateSyncing uint32 = 1
)

var (
	ErrAlreadySyncing = errors.New("sync: already syncing this peer")
	ErrEmptyResponse  = errors.New("sync: peer returned an empty response")
)

// BlockData is a single fetched block awaiting application, i.e. the wire
// payload a BlocksResponse carries.
type BlockData struct {
	Header *types.Header
	Body   []types.Extrinsic
}

func (b BlockData) block() *types.Block { return &types.Block{Header: b.Header, Body: b.Body} }

// PeerSource requests the open range (from, to] from peer: every block
// strictly after from up to and including to, in ascending order.
type PeerSource interface {
	RequestRange(ctx context.Context, peer ports.PeerID, from, to types.Hash) ([]BlockData, error)
}

// Importer is the subset of executor.Executor the Synchronizer drives.
// Satisfied by *executor.Executor.
type Importer interface {
	Import(ctx context.Context, block *types.Block) error
}

// Synchronizer is the gap-filling coroutine described by §4.9. One
// instance serves one gap-fill walk at a time per peer; concurrent walks
// against different peers run side by side and share one Progress record.
type Synchronizer struct {
	mu   sync.Mutex
	busy map[ports.PeerID]bool

	state atomic.Uint32

	source   PeerSource
	importer Importer
	progress Progress
	log      *log.Logger
}

// New constructs a Synchronizer. logger may be nil, in which case a
// package-default logger is used.
func New(source PeerSource, importer Importer, logger *log.Logger) *Synchronizer {
	if logger == nil {
		logger = log.Default().Module("sync")
	}
	return &Synchronizer{
		busy:     map[ports.PeerID]bool{},
		source:   source,
		importer: importer,
		log:      logger,
	}
}

// State reports whether any gap-fill walk is currently in flight.
func (s *Synchronizer) State() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.busy) > 0 {
		return StateSyncing
	}
	return StateIdle
}

// Progress returns a snapshot of the shared walk bookkeeping: each walk
// resets it when it starts, and every walk in flight advances it.
func (s *Synchronizer) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// FillGap walks the range (knownParent, target] by requesting successive
// pages from peer and applying each block through the importer, per the
// request/response/application protocol in §4.9:
//
//   - Request = (from_hash, to_hash, peer); Response = ordered BlockData.
//   - Each block is applied via the importer; ErrAlreadyKnown is treated
//     as "already applied, continue"; any other error aborts the walk.
//   - If the page received does not reach to_hash, a follow-up request is
//     issued starting from the last block actually applied.
//   - An empty response terminates the walk with a warning, since the
//     peer claims to have nothing more but the target was never reached.
func (s *Synchronizer) FillGap(ctx context.Context, peer ports.PeerID, knownParent, target types.BlockInfo) error {
	if err := s.claim(peer); err != nil {
		return err
	}
	defer s.release(peer)

	s.state.Store(StateSyncing)
	defer s.state.Store(StateIdle)

	s.mu.Lock()
	s.progress = Progress{StartingBlock: knownParent.Number, HighestBlock: target.Number}
	s.mu.Unlock()

	cursor := knownParent.Hash
	for cursor != target.Hash {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := s.source.RequestRange(ctx, peer, cursor, target.Hash)
		if err != nil {
			return errors.Wrap(err, "sync: range request failed")
		}
		if len(page) == 0 {
			s.log.Warn("peer returned empty page before reaching target", "peer", peer, "cursor", cursor.Hex(), "target", target.Hash.Hex())
			return ErrEmptyResponse
		}

		for _, data := range page {
			block := data.block()
			if err := s.importer.Import(ctx, block); err != nil && !isAlreadyKnown(err) {
				return errors.Wrap(err, "sync: failed to apply fetched block")
			}
			cursor = block.Header.Hash()
			s.mu.Lock()
			s.progress.CurrentBlock = block.Header.Number
			s.progress.PulledBlocks++
			s.mu.Unlock()
		}
	}
	return nil
}

func isAlreadyKnown(err error) bool {
	return errors.Is(err, types.ErrAlreadyKnown)
}

func (s *Synchronizer) claim(peer ports.PeerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[peer] {
		return ErrAlreadySyncing
	}
	s.busy[peer] = true
	return nil
}

func (s *Synchronizer) release(peer ports.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, peer)
}
