// Package ports fixes the interfaces to every external collaborator the
// core consensus and import subsystem depends on but does not implement:
// the WASM runtime, the state trie, the libp2p-style network host, and the
// codec/crypto primitives used as oracles throughout. Production wiring
// supplies concrete adapters; tests supply fakes.
package ports

import (
	"context"

	"github.com/vanguardchain/vanguard/types"
)

// Runtime calls a named export of the on-chain WASM runtime against a given
// state root. The core never inspects runtime internals; it only observes
// the returned state-changing effects via TrieStore.CommitAt.
type Runtime interface {
	// ExecuteBlock runs the "Core_execute_block" export against the state
	// rooted at parentStateRoot, applying block's extrinsics. It returns the
	// effects to commit via TrieStore, or an error classified as
	// types.CategoryIntegrity (RuntimeTrap) on a trap.
	ExecuteBlock(ctx context.Context, parentStateRoot types.Hash, block *types.Block) (StateDiff, error)

	// Call invokes an arbitrary named export against the given state root,
	// used for inherent data collection and runtime API queries.
	Call(ctx context.Context, stateRoot types.Hash, method string, args []byte) ([]byte, error)
}

// StateDiff is the set of key/value effects a runtime call produced, ready
// to be committed to the TrieStore.
type StateDiff struct {
	Set    map[string][]byte
	Delete []string
}

// TrieStore is the state-trie backing store. Reads are snapshot-consistent
// against a given root; writes are only visible after CommitAt returns a new
// root.
type TrieStore interface {
	Get(root types.Hash, key []byte) ([]byte, error)
	Put(root types.Hash, key, value []byte) (types.Hash, error)
	Delete(root types.Hash, key []byte) (types.Hash, error)

	// CommitAt applies diff atop root and returns the resulting root.
	CommitAt(root types.Hash, diff StateDiff) (types.Hash, error)
}

// NetworkHost is the libp2p-style transport the core sends and broadcasts
// wire messages through. Peer routing, multiplexing, and secure channels are
// the host's concern, not the core's.
type NetworkHost interface {
	Send(ctx context.Context, peer PeerID, protocol string, msg []byte) error
	Broadcast(ctx context.Context, protocol string, msg []byte) error
	OpenStream(ctx context.Context, peer PeerID, protocol string) (Stream, error)
}

// PeerID identifies a remote peer as handed to us by the network host.
type PeerID string

// Stream is a bidirectional byte stream to a single peer for one protocol.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// RPCEmitter is the surrounding JSON-RPC collaborator that the core pushes
// subscription events to. The RPC transport itself — sessions, method
// dispatch — is out of scope; only these emission points are.
type RPCEmitter interface {
	EmitNewHead(header *types.Header)
	EmitFinalizedHead(header *types.Header)
	EmitStorageChanged(block types.Hash, changes map[string][]byte)
	EmitExtrinsicStatus(hash types.Hash, status ExtrinsicStatus)
}

// ExtrinsicStatus is one point in an extrinsic's RPC-visible lifecycle.
type ExtrinsicStatus struct {
	Kind  ExtrinsicStatusKind
	Block types.Hash   // meaningful for InBlock/Finalized
	Peers []PeerID     // meaningful for Broadcast
}

// Crypto is the signature-scheme and VRF oracle. BABE and GRANDPA never
// touch key material or curve arithmetic directly; they call this port to
// verify seals/votes and, for the local authoring key, to produce them.
type Crypto interface {
	// VerifySignature checks sig over msg under the public key id.
	VerifySignature(id types.AuthorityID, msg, sig []byte) bool

	// Sign produces a signature over msg under the local authoring key.
	Sign(msg []byte) ([]byte, error)

	// VRFProve evaluates the VRF over msg with the local key, returning the
	// output and a proof a verifier can check without the secret key.
	VRFProve(msg []byte) (output [32]byte, proof [64]byte, err error)

	// VRFVerify checks that proof attests output = VRF(msg) under id.
	VRFVerify(id types.AuthorityID, msg []byte, output [32]byte, proof [64]byte) bool

	// LocalAuthorityID returns the public identity of the local authoring
	// key, used to locate our own index within an AuthoritySet.
	LocalAuthorityID() types.AuthorityID
}

// Proposer assembles a candidate block body: collecting inherents and
// ready transactions is the proposer's concern, not BabeProducer's.
type Proposer interface {
	Propose(ctx context.Context, parent types.BlockInfo, slot types.SlotNumber, deadline Deadline) ([]types.Extrinsic, error)
}

// Deadline is a best-effort wall-clock bound on proposal assembly.
type Deadline interface {
	Done() <-chan struct{}
}

// ExtrinsicStatusKind enumerates the lifecycle points named in the spec.
type ExtrinsicStatusKind int

const (
	ExtrinsicFuture ExtrinsicStatusKind = iota
	ExtrinsicReady
	ExtrinsicBroadcast
	ExtrinsicInBlock
	ExtrinsicFinalized
	ExtrinsicInvalid
)
