package txpool

import (
	"context"

	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/types"
)

// Proposer adapts Pool to ports.Proposer. Assembling a candidate body is
// just taking whatever the pool currently considers ready, in the order
// Ready returns them; BabeProducer owns slot timing and sealing.
type Proposer struct {
	pool *Pool
}

// NewProposer wraps pool for block authoring.
func NewProposer(pool *Pool) *Proposer {
	return &Proposer{pool: pool}
}

// Propose returns the pool's ready extrinsics. parent and slot are
// informational only — this pool does not currently bound proposals by
// weight or count, so deadline is unused too.
func (p *Proposer) Propose(ctx context.Context, parent types.BlockInfo, slot types.SlotNumber, deadline ports.Deadline) ([]types.Extrinsic, error) {
	return p.pool.Ready(), nil
}
