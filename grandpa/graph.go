package grandpa

import "github.com/vanguardchain/vanguard/types"

// ChainView is the subset of BlockTree the vote graph walks: ancestry
// queries to attribute a vote to every ancestor it implicitly supports, and
// child enumeration to walk the graph forward from a base block. Satisfied
// directly by *blocktree.Tree.
type ChainView interface {
	GetHeader(hash types.Hash) (*types.Header, error)
	Children(hash types.Hash) []types.BlockInfo
	IsAncestor(ancestor, descendant types.BlockInfo) bool
	KnownBlock(b types.BlockInfo) bool
}

// ghost computes the GRANDPA "GHOST" function over votes relative to base:
// the deepest block B such that base is an ancestor of (or equal to) B and
// every block on the path from base to B is supported, directly or via a
// descendant, by at least threshold weight of votes. Casting a vote for a
// block is treated as implicitly supporting every ancestor of that block
// back to base.
func ghost(chain ChainView, base types.BlockInfo, votes map[types.AuthorityID]types.SignedVote, weights map[types.AuthorityID]uint64, threshold uint64) types.BlockInfo {
	support := map[types.Hash]uint64{}

	for voter, vote := range votes {
		w := weights[voter]
		if w == 0 {
			continue
		}
		if vote.Target.Hash != base.Hash && !chain.IsAncestor(base, vote.Target) {
			continue
		}
		cur := vote.Target
		for {
			support[cur.Hash] += w
			if cur.Hash == base.Hash {
				break
			}
			header, err := chain.GetHeader(cur.Hash)
			if err != nil {
				break
			}
			parentHeader, err := chain.GetHeader(header.ParentHash)
			if err != nil {
				break
			}
			cur = types.BlockInfo{Number: parentHeader.Number, Hash: header.ParentHash}
		}
	}

	current := base
	for {
		children := chain.Children(current.Hash)
		var next *types.BlockInfo
		var bestWeight uint64
		for _, c := range children {
			w := support[c.Hash]
			if w < threshold {
				continue
			}
			if next == nil || w > bestWeight || (w == bestWeight && c.Hash.Less(next.Hash)) {
				cc := c
				next = &cc
				bestWeight = w
			}
		}
		if next == nil {
			return current
		}
		current = *next
	}
}

// totalWeight sums the weight of every voter present in votes.
func totalWeight(votes map[types.AuthorityID]types.SignedVote, weights map[types.AuthorityID]uint64) uint64 {
	var total uint64
	for voter := range votes {
		total += weights[voter]
	}
	return total
}
