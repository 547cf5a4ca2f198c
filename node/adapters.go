package node

import (
	"context"

	"github.com/vanguardchain/vanguard/executor"
	"github.com/vanguardchain/vanguard/network"
	"github.com/vanguardchain/vanguard/types"
)

// blockGossip adapts network.Host to babe.Broadcaster: a freshly-sealed
// block is announced by header only, the same asymmetry the wire protocol
// itself draws between BlockAnnounce and the body carried in a
// BlocksResponse.
type blockGossip struct {
	host *network.Host
}

func (g *blockGossip) BroadcastBlock(ctx context.Context, block *types.Block) error {
	msg, err := network.BlockAnnounce{Header: block.Header}.Encode()
	if err != nil {
		return err
	}
	return g.host.Broadcast(ctx, network.ProtocolBlockAnnounce, msg)
}

// voteGossip adapts network.Host to grandpa.Broadcaster.
type voteGossip struct {
	host *network.Host
}

func (g *voteGossip) BroadcastVote(ctx context.Context, vote types.SignedVote) error {
	msg, err := network.GrandpaMessage{Kind: network.GrandpaVote, Vote: &vote}.Encode()
	if err != nil {
		return err
	}
	return g.host.Broadcast(ctx, network.ProtocolGrandpa, msg)
}

// finalizationSink adapts executor.Executor to grandpa.FinalizationSink.
// The executor's own Finalize method does the real work (advancing the
// block tree's finality cursor and folding the authority-set tree
// forward); this only bridges the method name the Voter calls.
type finalizationSink struct {
	exec *executor.Executor
}

func (s *finalizationSink) OnFinalized(justification types.Justification) error {
	return s.exec.Finalize(justification)
}
