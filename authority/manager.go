// Package authority implements the fork-aware authority-set manager: a tree
// of ScheduleNodes anchored at the last-finalized block, each fixing the
// AuthoritySet active for its subtree until a descendant node overrides it.
package authority

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/vanguardchain/vanguard/storage"
	"github.com/vanguardchain/vanguard/types"
)

// AncestryChecker answers ancestry queries against the BlockTree. The
// manager never stores block headers itself — ScheduleNode.Block is a weak
// reference, resolved against this checker.
type AncestryChecker interface {
	IsAncestor(ancestor, descendant types.BlockInfo) bool
	KnownBlock(block types.BlockInfo) bool
}

// ScheduleNode fixes an AuthoritySet for the subtree rooted at Block, until
// overridden by a descendant node. Pending holds actions whose activation
// block has been recorded but not yet reached.
type ScheduleNode struct {
	Block      types.BlockInfo
	Set        types.AuthoritySet
	Pending    []types.ScheduledAction
	Children   []*ScheduleNode
}

// Manager is the fork-aware authority-set tree described by §4.2.
type Manager struct {
	mu       sync.RWMutex
	db       storage.Database
	tree     AncestryChecker
	root     *ScheduleNode
}

// New constructs a manager rooted at genesis with the given initial set,
// and persists that root immediately.
func New(db storage.Database, tree AncestryChecker, genesis types.BlockInfo, initial types.AuthoritySet) (*Manager, error) {
	m := &Manager{
		db:   db,
		tree: tree,
		root: &ScheduleNode{Block: genesis, Set: initial},
	}
	if err := m.persistRoot(); err != nil {
		return nil, err
	}
	return m, nil
}

// Authorities returns the active authority set at block B: the deepest
// ancestor ScheduleNode of B, with every Pending action whose ActivateAt is
// ≤ B.Number folded into a local copy of that node's set.
func (m *Manager) Authorities(b types.BlockInfo) (types.AuthoritySet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node := m.deepestAncestor(b)
	if node == nil {
		return types.AuthoritySet{}, types.ErrUnknownAncestor
	}
	return m.applyPending(node, b.Number), nil
}

// deepestAncestor walks the tree to the deepest node whose Block is an
// ancestor of (or equal to) b.
func (m *Manager) deepestAncestor(b types.BlockInfo) *ScheduleNode {
	best := m.root
	if best.Block.Hash != b.Hash && !m.tree.IsAncestor(best.Block, b) {
		return nil
	}
	changed := true
	for changed {
		changed = false
		for _, child := range best.Children {
			if child.Block.Hash == b.Hash || m.tree.IsAncestor(child.Block, b) {
				best = child
				changed = true
				break
			}
		}
	}
	return best
}

func (m *Manager) applyPending(node *ScheduleNode, at types.BlockNumber) types.AuthoritySet {
	set := node.Set.Clone()
	for _, action := range node.Pending {
		if action.ActivateAt > at {
			continue
		}
		switch action.Kind {
		case types.ActionEnactAt, types.ActionForceAt:
			set = action.NewSet.Clone()
		case types.ActionDisable:
			if int(action.DisabledIdx) < len(set.Authorities) {
				set.Authorities = append(append([]types.Authority{}, set.Authorities[:action.DisabledIdx]...), set.Authorities[action.DisabledIdx+1:]...)
			}
		case types.ActionPause, types.ActionResume:
			// Voting-ability suspension does not change the set's
			// membership or weights; GrandpaVoter consults Paused
			// directly rather than through the returned set.
		}
	}
	return set
}

// Paused reports whether the subtree containing b has an unresumed Pause
// action active at b.Number.
func (m *Manager) Paused(b types.BlockInfo) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	node := m.deepestAncestor(b)
	if node == nil {
		return false
	}
	paused := false
	for _, action := range node.Pending {
		if action.ActivateAt > b.Number {
			continue
		}
		switch action.Kind {
		case types.ActionPause:
			paused = true
		case types.ActionResume:
			paused = false
		}
	}
	return paused
}

// OnScheduledChange attaches a new ScheduleNode child at `at`, effective for
// descendants of `at` once their number ≥ activateAt.
func (m *Manager) OnScheduledChange(at types.BlockInfo, newSet types.AuthoritySet, activateAt types.BlockNumber) error {
	return m.addChange(at, newSet, activateAt, types.ActionEnactAt)
}

// OnForcedChange is as OnScheduledChange but overrides any scheduled change
// already pending on the same branch.
func (m *Manager) OnForcedChange(at types.BlockInfo, newSet types.AuthoritySet, activateAt types.BlockNumber) error {
	return m.addChange(at, newSet, activateAt, types.ActionForceAt)
}

func (m *Manager) addChange(at types.BlockInfo, newSet types.AuthoritySet, activateAt types.BlockNumber, kind types.ScheduledActionKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if activateAt < at.Number {
		return types.ErrInvalidActivation
	}
	node := m.attachNode(at)
	if node == nil {
		return types.ErrUnknownAncestor
	}
	if kind == types.ActionForceAt {
		node.Pending = clearScheduled(node.Pending)
	}
	node.Pending = append(node.Pending, types.ScheduledAction{Kind: kind, ActivateAt: activateAt, NewSet: newSet})
	return nil
}

// OnDisabled marks the authority at idx disabled on the subtree rooted at at.
func (m *Manager) OnDisabled(at types.BlockInfo, idx uint32) error {
	return m.addAction(at, types.ScheduledAction{Kind: types.ActionDisable, ActivateAt: at.Number, DisabledIdx: idx})
}

// OnPause suspends voting ability on the subtree rooted at at, from block n.
func (m *Manager) OnPause(at types.BlockInfo, n types.BlockNumber) error {
	return m.addAction(at, types.ScheduledAction{Kind: types.ActionPause, ActivateAt: n})
}

// OnResume resumes voting ability on the subtree rooted at at, from block n.
func (m *Manager) OnResume(at types.BlockInfo, n types.BlockNumber) error {
	return m.addAction(at, types.ScheduledAction{Kind: types.ActionResume, ActivateAt: n})
}

func (m *Manager) addAction(at types.BlockInfo, action types.ScheduledAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if action.ActivateAt < at.Number {
		return types.ErrInvalidActivation
	}
	node := m.attachNode(at)
	if node == nil {
		return types.ErrUnknownAncestor
	}
	node.Pending = append(node.Pending, action)
	return nil
}

// attachNode finds (or creates, materializing pending enact/force actions as
// a fresh child) the ScheduleNode to record a new action against at block at.
// Returns nil if at is not known to the tree.
func (m *Manager) attachNode(at types.BlockInfo) *ScheduleNode {
	if !m.tree.KnownBlock(at) {
		return nil
	}
	existing := m.findNode(m.root, at)
	if existing != nil {
		return existing
	}
	parent := m.deepestAncestor(at)
	if parent == nil {
		return nil
	}
	child := &ScheduleNode{Block: at, Set: m.applyPending(parent, at.Number)}
	parent.Children = append(parent.Children, child)
	return child
}

func (m *Manager) findNode(node *ScheduleNode, at types.BlockInfo) *ScheduleNode {
	if node.Block.Hash == at.Hash {
		return node
	}
	for _, c := range node.Children {
		if found := m.findNode(c, at); found != nil {
			return found
		}
	}
	return nil
}

// OnFinalize advances the root to the deepest ScheduleNode that is an
// ancestor of b, drops every branch not containing b, and persists the new
// root.
func (m *Manager) OnFinalize(b types.BlockInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.Number < m.root.Block.Number {
		return nil
	}
	newRoot := m.deepestAncestor(b)
	if newRoot == nil {
		return types.ErrUnknownAncestor
	}
	newRoot.Set = m.applyPending(newRoot, b.Number)
	newRoot.Pending = remainingPending(newRoot.Pending, b.Number)
	kept := newRoot.Children[:0:0]
	for _, c := range newRoot.Children {
		if m.tree.IsAncestor(b, c.Block) {
			kept = append(kept, c)
		}
	}
	newRoot.Children = kept
	m.root = newRoot
	return m.persistRoot()
}

func remainingPending(actions []types.ScheduledAction, at types.BlockNumber) []types.ScheduledAction {
	out := actions[:0:0]
	for _, a := range actions {
		if a.ActivateAt > at {
			out = append(out, a)
		}
	}
	return out
}

func clearScheduled(actions []types.ScheduledAction) []types.ScheduledAction {
	out := actions[:0:0]
	for _, a := range actions {
		if a.Kind != types.ActionEnactAt {
			out = append(out, a)
		}
	}
	return out
}

func (m *Manager) persistRoot() error {
	if err := m.db.Put(storage.AuthSetKey(), m.root.Set.Encode()); err != nil {
		return errors.Wrap(err, "authority: persist current set")
	}
	return m.db.Put(storage.AuthRootKey(), encodeRootMarker(m.root.Block))
}

func encodeRootMarker(b types.BlockInfo) []byte {
	buf := make([]byte, 8+types.HashLength)
	putU64(buf, uint64(b.Number))
	copy(buf[8:], b.Hash[:])
	return buf
}

func putU64(buf []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
}
