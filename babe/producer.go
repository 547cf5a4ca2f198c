package babe

import (
	"context"
	"time"

	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/types"
)

// HeadProvider supplies the block to build on. Satisfied by blocktree.Tree.
type HeadProvider interface {
	DeepestLeaf() types.BlockInfo
}

// Importer hands a freshly-sealed block to the import pipeline. Satisfied
// by executor.Executor.
type Importer interface {
	Import(ctx context.Context, block *types.Block) error
}

// Broadcaster gossips a freshly-produced block announcement to peers.
type Broadcaster interface {
	BroadcastBlock(ctx context.Context, block *types.Block) error
}

// leaderSlot records a precomputed winning slot within an epoch.
type leaderSlot struct {
	slot   types.SlotNumber
	output [32]byte
	proof  [64]byte
}

// Producer drives the per-slot authoring loop described by §4.6.
type Producer struct {
	crypto   ports.Crypto
	proposer ports.Proposer
	heads    HeadProvider
	importer Importer
	gossip   Broadcaster
	c        float64

	leadership map[types.SlotNumber]leaderSlot
	descriptor types.EpochDescriptor
}

// NewProducer constructs a Producer. Call SetEpoch before RunSlot for the
// first epoch and again at each epoch boundary.
func NewProducer(crypto ports.Crypto, proposer ports.Proposer, heads HeadProvider, importer Importer, gossip Broadcaster, c float64) *Producer {
	return &Producer{crypto: crypto, proposer: proposer, heads: heads, importer: importer, gossip: gossip, c: c}
}

// SetEpoch precomputes the leadership vector for descriptor: for each slot
// in the epoch, evaluates the local VRF and records it iff the output
// clears the self-threshold.
func (p *Producer) SetEpoch(descriptor types.EpochDescriptor) error {
	local := p.crypto.LocalAuthorityID()
	idx := -1
	for i, a := range descriptor.Authorities {
		if a.ID == local {
			idx = i
			break
		}
	}
	p.descriptor = descriptor
	p.leadership = map[types.SlotNumber]leaderSlot{}
	if idx < 0 {
		return nil // not a member of this epoch's authority set
	}
	total := totalWeight(descriptor.Authorities)
	selfThreshold := threshold(p.c, descriptor.Authorities[idx].Weight, total)

	for s := descriptor.StartSlot; s < descriptor.EndSlot(); s++ {
		epochIndex := descriptor.EpochIndex
		msg := vrfTranscript(descriptor.Randomness, s, epochIndex)
		output, proof, err := p.crypto.VRFProve(msg)
		if err != nil {
			return err
		}
		if outputInt(output).Cmp(selfThreshold) < 0 {
			p.leadership[s] = leaderSlot{slot: s, output: output, proof: proof}
		}
	}
	return nil
}

// IsLeader reports whether the local node won slot s in the currently
// loaded epoch.
func (p *Producer) IsLeader(s types.SlotNumber) bool {
	_, ok := p.leadership[s]
	return ok
}

// RunSlot executes the authoring steps for slot s if the local node is the
// leader; a no-op otherwise. deadline bounds step 2 (ready-transaction
// collection).
func (p *Producer) RunSlot(ctx context.Context, s types.SlotNumber, deadline time.Duration) error {
	win, ok := p.leadership[s]
	if !ok {
		return nil
	}

	head := p.heads.DeepestLeaf()

	proposeCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	body, err := p.proposer.Propose(proposeCtx, head, s, proposeCtx)
	if err != nil {
		return err
	}

	authorityIndex := p.localAuthorityIndex()
	preDigest := types.BABEPreDigest{
		Slot:           s,
		AuthorityIndex: authorityIndex,
		VRFOutput:      win.output,
		VRFProof:       win.proof,
	}
	header := &types.Header{
		ParentHash:     head.Hash,
		Number:         head.Number + 1,
		ExtrinsicsRoot: types.ComputeExtrinsicsRoot(body),
		Digests: []types.Digest{
			{Kind: types.DigestPreRuntime, Engine: types.EngineBABE, Data: preDigest.Encode()},
		},
	}
	sealMsg := header.Hash()
	sig, err := p.crypto.Sign(sealMsg.Bytes())
	if err != nil {
		return err
	}
	header.Digests = append(header.Digests, types.Digest{Kind: types.DigestSeal, Engine: types.EngineBABE, Data: sig})

	block := &types.Block{Header: header, Body: body}
	if err := p.importer.Import(ctx, block); err != nil {
		return err
	}
	return p.gossip.BroadcastBlock(ctx, block)
}

func (p *Producer) localAuthorityIndex() uint32 {
	local := p.crypto.LocalAuthorityID()
	for i, a := range p.descriptor.Authorities {
		if a.ID == local {
			return uint32(i)
		}
	}
	return 0
}
