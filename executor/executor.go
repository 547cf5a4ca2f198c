// Package executor implements BlockExecutor, the import pipeline described
// by §4.5: validate a header's consensus seal, execute its body against the
// runtime, verify the resulting state root, attach it to the block tree,
// dispatch any consensus digests to the authority-set manager, and reap its
// extrinsics out of the transaction pool.
package executor

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vanguardchain/vanguard/babe"
	"github.com/vanguardchain/vanguard/epoch"
	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/storage"
	"github.com/vanguardchain/vanguard/types"
)

// tracer is a no-op until the host process registers a TracerProvider via
// otel.SetTracerProvider (e.g. an OTLP exporter); Import's span is then
// free of cost except for context propagation.
var tracer = otel.Tracer("github.com/vanguardchain/vanguard/executor")

// BlockTree is the subset of blocktree.Tree the executor drives.
type BlockTree interface {
	GetHeader(hash types.Hash) (*types.Header, error)
	AddHeader(header *types.Header) error
	AddBody(hash types.Hash, body []types.Extrinsic) error
	KnownBlock(b types.BlockInfo) bool
	Finalize(block types.BlockInfo, db storage.Database) error
}

// AuthorityManager is the subset of authority.Manager the executor drives
// when dispatching consensus digests and finality notifications.
type AuthorityManager interface {
	Authorities(b types.BlockInfo) (types.AuthoritySet, error)
	OnScheduledChange(at types.BlockInfo, newSet types.AuthoritySet, activateAt types.BlockNumber) error
	OnForcedChange(at types.BlockInfo, newSet types.AuthoritySet, activateAt types.BlockNumber) error
	OnDisabled(at types.BlockInfo, idx uint32) error
	OnPause(at types.BlockInfo, n types.BlockNumber) error
	OnResume(at types.BlockInfo, n types.BlockNumber) error
	OnFinalize(b types.BlockInfo) error
}

// TxPool is the subset of the transaction pool the executor reaps applied
// extrinsics from. Satisfied by txpool.Pool.
type TxPool interface {
	Remove(hashes []types.Hash)
}

// reapHashes derives the hashes TxPool.Remove is called with from a block's
// body.
func reapHashes(body []types.Extrinsic) []types.Hash {
	hashes := make([]types.Hash, len(body))
	for i, e := range body {
		hashes[i] = e.Hash()
	}
	return hashes
}

// Executor is the BlockExecutor described by §4.5. It satisfies
// babe.Importer.
type Executor struct {
	mu sync.Mutex

	db         storage.Database
	tree       BlockTree
	authority  AuthorityManager
	epochs     *epoch.Store
	validator  *babe.Validator
	runtime    ports.Runtime
	trie       ports.TrieStore
	pool       TxPool
	rpc        ports.RPCEmitter // optional; nil disables push notifications
}

// New constructs an Executor wired to its collaborators.
func New(db storage.Database, tree BlockTree, authority AuthorityManager, epochs *epoch.Store, validator *babe.Validator, runtime ports.Runtime, trie ports.TrieStore, pool TxPool, rpc ports.RPCEmitter) *Executor {
	return &Executor{
		db: db, tree: tree, authority: authority, epochs: epochs,
		validator: validator, runtime: runtime, trie: trie, pool: pool, rpc: rpc,
	}
}

// Import runs the full pipeline over block. A missing parent is reported
// via types.ErrUnknownParent (CategoryStructural) so the caller's
// Synchronizer can recognize an ancestor gap and fetch the missing range
// before retrying.
func (e *Executor) Import(ctx context.Context, block *types.Block) (err error) {
	info := block.Header.Info()

	ctx, span := tracer.Start(ctx, "executor.Import", trace.WithAttributes(
		attribute.Int64("block.number", int64(info.Number)),
		attribute.Int("block.extrinsics", len(block.Body)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tree.KnownBlock(info) {
		return nil // already imported; re-import is a no-op, not an error
	}

	parent, err := e.tree.GetHeader(block.Header.ParentHash)
	if err != nil {
		return errors.Wrap(types.ErrUnknownParent, "executor: parent not yet imported")
	}

	// The pre-digest is only needed to verify the seal; execution consumes
	// the sealed body, not the slot claim itself.
	if _, err := e.validator.Validate(block.Header); err != nil {
		return err
	}

	diff, err := e.runtime.ExecuteBlock(ctx, parent.StateRoot, block)
	if err != nil {
		return errors.Wrap(types.ErrRuntimeTrap, err.Error())
	}
	newRoot, err := e.trie.CommitAt(parent.StateRoot, diff)
	if err != nil {
		return errors.Wrap(types.ErrTrieCorruption, err.Error())
	}
	if newRoot != block.Header.StateRoot {
		return types.ErrStateRootMismatch
	}

	if err := e.tree.AddHeader(block.Header); err != nil {
		return err
	}
	if err := e.tree.AddBody(info.Hash, block.Body); err != nil {
		return err
	}

	if err := e.dispatchDigests(info, block.Header); err != nil {
		return err
	}

	e.pool.Remove(reapHashes(block.Body))

	if e.rpc != nil {
		e.rpc.EmitNewHead(block.Header)
	}
	return nil
}

// dispatchDigests hands every GRANDPA consensus digest in header to the
// AuthoritySetManager; digests of other engines and kinds are skipped.
func (e *Executor) dispatchDigests(info types.BlockInfo, header *types.Header) error {
	for _, d := range header.PreSealDigests() {
		if d.Kind != types.DigestConsensus || d.Engine != types.EngineGRANDPA {
			continue
		}
		action, err := types.DecodeScheduledAction(d.Data)
		if err != nil {
			return errors.Wrap(types.ErrInvalidSeal, "executor: malformed consensus digest")
		}
		switch action.Kind {
		case types.ActionEnactAt:
			if err := e.authority.OnScheduledChange(info, action.NewSet, action.ActivateAt); err != nil {
				return err
			}
		case types.ActionForceAt:
			if err := e.authority.OnForcedChange(info, action.NewSet, action.ActivateAt); err != nil {
				return err
			}
		case types.ActionDisable:
			if err := e.authority.OnDisabled(info, action.DisabledIdx); err != nil {
				return err
			}
		case types.ActionPause:
			if err := e.authority.OnPause(info, action.ActivateAt); err != nil {
				return err
			}
		case types.ActionResume:
			if err := e.authority.OnResume(info, action.ActivateAt); err != nil {
				return err
			}
		}
	}
	return nil
}

// Finalize applies a GRANDPA justification: advances the block tree's
// finality cursor and folds the authority-set tree forward. It does not
// touch the epoch store; the FromUnixEpoch anchor is only written by
// SeedGenesisEpoch. Called by the GrandpaVoter's FinalizationSink.
func (e *Executor) Finalize(justification types.Justification) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.tree.Finalize(justification.Target, e.db); err != nil {
		return err
	}
	return e.authority.OnFinalize(justification.Target)
}

// SeedGenesisEpoch records descriptor as both epoch 0 and the FromUnixEpoch
// anchor, so IndexForSlot has a starting point before any block has been
// authored. Call once during node startup against a fresh epoch store.
func (e *Executor) SeedGenesisEpoch(descriptor types.EpochDescriptor) error {
	if err := e.epochs.PutEpoch(descriptor.EpochIndex, descriptor); err != nil {
		return err
	}
	return e.epochs.SetLast(descriptor)
}
