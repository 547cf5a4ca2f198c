package node

import (
	"context"

	"github.com/vanguardchain/vanguard/blocktree"
	"github.com/vanguardchain/vanguard/executor"
	"github.com/vanguardchain/vanguard/grandpa"
	"github.com/vanguardchain/vanguard/log"
	"github.com/vanguardchain/vanguard/network"
	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/sync"
	"github.com/vanguardchain/vanguard/txpool"
	"github.com/vanguardchain/vanguard/types"
)

// wireProtocolHandlers registers the inbound side of every wire protocol
// §6 defines, bridging network.Host's callback dispatch to the core
// subsystems that own the actual state transitions.
func wireProtocolHandlers(host *network.Host, tree *blocktree.Tree, exec *executor.Executor, pool *txpool.Pool, voter *grandpa.Voter, syncer *sync.Synchronizer, logger *log.Logger) {
	host.Handle(network.ProtocolBlockAnnounce, func(peer ports.PeerID, msg []byte) {
		announce, err := network.DecodeBlockAnnounce(msg)
		if err != nil {
			logger.Warn("malformed block announce", "peer", peer, "err", err)
			return
		}
		handleBlockAnnounce(context.Background(), peer, announce, tree, exec, syncer, logger)
	})

	host.Handle(network.ProtocolTransactions, func(peer ports.PeerID, msg []byte) {
		txs, err := network.DecodeTransactions(msg)
		if err != nil {
			logger.Warn("malformed transactions message", "peer", peer, "err", err)
			return
		}
		best := tree.DeepestLeaf()
		for _, ext := range txs.Extrinsics {
			if err := pool.Submit(txpool.Transaction{Extrinsic: ext}, best.Number); err != nil {
				logger.Debug("rejected gossiped extrinsic", "peer", peer, "err", err)
			}
		}
	})

	host.Handle(network.ProtocolGrandpa, func(peer ports.PeerID, msg []byte) {
		gm, err := network.DecodeGrandpaMessage(msg)
		if err != nil {
			logger.Warn("malformed grandpa message", "peer", peer, "err", err)
			return
		}
		if gm.Kind != network.GrandpaVote || gm.Vote == nil {
			return
		}
		if _, err := voter.OnVote(*gm.Vote); err != nil {
			logger.Debug("rejected grandpa vote", "peer", peer, "err", err)
		}
	})
}

// handleBlockAnnounce imports an announced header-only block directly when
// its parent is already known. An unknown parent means we're behind the
// announcer by at least one block, so a gap-fill walk is kicked off against
// the announcing peer instead of rejecting the announcement outright.
func handleBlockAnnounce(ctx context.Context, peer ports.PeerID, announce network.BlockAnnounce, tree *blocktree.Tree, exec *executor.Executor, syncer *sync.Synchronizer, logger *log.Logger) {
	header := announce.Header
	err := exec.Import(ctx, &types.Block{Header: header})
	if err == nil {
		return
	}
	if cat, ok := types.CategoryOf(err); !ok || cat != types.CategoryStructural {
		logger.Warn("reject announced block", "peer", peer, "err", err)
		return
	}

	known := tree.DeepestLeaf()
	target := header.Info()
	if fillErr := syncer.FillGap(ctx, peer, known, target); fillErr != nil {
		logger.Warn("gap-fill failed", "peer", peer, "err", fillErr)
	}
}
