package sync

import "github.com/vanguardchain/vanguard/types"

// Progress tracks gap-fill walk bookkeeping, as returned by
// Synchronizer.Progress.
type Progress struct {
	StartingBlock types.BlockNumber // the known-good ancestor the walk started from
	CurrentBlock  types.BlockNumber // the last block actually applied
	HighestBlock  types.BlockNumber // the gap's target
	PulledBlocks  uint64            // total blocks applied across all pages this walk
}

// Done reports whether the walk reached its target.
func (p Progress) Done() bool {
	return p.CurrentBlock >= p.HighestBlock && p.HighestBlock != 0
}
