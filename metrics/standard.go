package metrics

// Pre-defined metrics for the node. All metrics live in DefaultRegistry so
// they are globally accessible without passing a registry around.

var (
	// ---- Chain metrics ----

	// ChainHeight tracks the deepest imported block number.
	ChainHeight = DefaultRegistry.Gauge("chain.height")
	// FinalizedHeight tracks the last GRANDPA-finalized block number.
	FinalizedHeight = DefaultRegistry.Gauge("chain.finalized_height")
	// BlockImportTime records block import-pipeline duration in milliseconds.
	BlockImportTime = DefaultRegistry.Histogram("chain.block_import_ms")
	// BlocksImported counts blocks successfully appended to the block tree.
	BlocksImported = DefaultRegistry.Counter("chain.blocks_imported")
	// ForkChoiceReorgs counts changes of the block tree's deepest leaf to a
	// block not a descendant of the previous one.
	ForkChoiceReorgs = DefaultRegistry.Counter("chain.reorgs")

	// ---- Transaction pool metrics ----

	// TxPoolReady tracks the number of extrinsics currently eligible for
	// inclusion in a proposed block.
	TxPoolReady = DefaultRegistry.Gauge("txpool.ready")
	// TxPoolWaiting tracks the number of extrinsics waiting on an unmet
	// dependency tag.
	TxPoolWaiting = DefaultRegistry.Gauge("txpool.waiting")
	// TxPoolSubmitted counts extrinsics accepted into the pool.
	TxPoolSubmitted = DefaultRegistry.Counter("txpool.submitted")
	// TxPoolRejected counts extrinsics rejected by the pool (stale, banned,
	// duplicate, or malformed).
	TxPoolRejected = DefaultRegistry.Counter("txpool.rejected")

	// ---- Network metrics ----

	// PeersConnected tracks the current number of connected peers.
	PeersConnected = DefaultRegistry.Gauge("network.peers")
	// MessagesReceived counts wire protocol messages received.
	MessagesReceived = DefaultRegistry.Counter("network.messages_received")
	// MessagesSent counts wire protocol messages sent.
	MessagesSent = DefaultRegistry.Counter("network.messages_sent")

	// ---- RPC metrics ----

	// RPCSubscriptions tracks the current number of active RPC push
	// subscriptions.
	RPCSubscriptions = DefaultRegistry.Gauge("rpc.subscriptions")
	// RPCEventsEmitted counts push notifications sent to subscribers.
	RPCEventsEmitted = DefaultRegistry.Counter("rpc.events_emitted")

	// ---- BABE / GRANDPA consensus metrics ----

	// BabeSlotsClaimed counts slots the local authority won and sealed.
	BabeSlotsClaimed = DefaultRegistry.Counter("babe.slots_claimed")
	// BabeSlotsSkipped counts slots the local authority did not win.
	BabeSlotsSkipped = DefaultRegistry.Counter("babe.slots_skipped")
	// GrandpaRound tracks the current GRANDPA voting round number.
	GrandpaRound = DefaultRegistry.Gauge("grandpa.round")
	// GrandpaEquivocations counts detected equivocating votes.
	GrandpaEquivocations = DefaultRegistry.Counter("grandpa.equivocations")
)
