// Package blocktree maintains the in-memory DAG of known block headers, the
// best-chain heuristic, and the finality cursor.
package blocktree

import (
	"sync"

	"github.com/vanguardchain/vanguard/storage"
	"github.com/vanguardchain/vanguard/types"
)

type node struct {
	header   *types.Header
	body     []types.Extrinsic
	weight   uint64 // cumulative authority weight from genesis to this block
	children []*node
	parent   *node
}

// WeightOf looks up the per-authority weight that produced a block, used to
// extend BlockTree's cumulative weight when a header is added. Supplied by
// the caller (typically the import pipeline, which knows the authority set
// active at the parent) since BlockTree itself has no notion of authorities.
type WeightOf func(header *types.Header) uint64

// Tree is the BlockTree described by §4.3: every block has exactly one
// parent (or is genesis); last finalized is an ancestor of every leaf;
// pruning is atomic with finalization.
type Tree struct {
	mu           sync.RWMutex
	nodes        map[types.Hash]*node
	root         *node // last finalized block
	weightOf     WeightOf
}

// New constructs a tree rooted at the given genesis header.
func New(genesis *types.Header, weightOf WeightOf) *Tree {
	root := &node{header: genesis, weight: 0}
	t := &Tree{
		nodes:    map[types.Hash]*node{genesis.Hash(): root},
		root:     root,
		weightOf: weightOf,
	}
	return t
}

// AddHeader inserts header into the tree. Fails ErrUnknownParent if the
// parent is absent, ErrAlreadyKnown if header.Hash() is already present.
func (t *Tree) AddHeader(header *types.Header) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	hash := header.Hash()
	if _, ok := t.nodes[hash]; ok {
		return types.ErrAlreadyKnown
	}
	parent, ok := t.nodes[header.ParentHash]
	if !ok {
		return types.ErrUnknownParent
	}
	n := &node{header: header, parent: parent, weight: parent.weight + t.weightOf(header)}
	parent.children = append(parent.children, n)
	t.nodes[hash] = n
	return nil
}

// AddBody attaches body to the header identified by hash. Fails
// ErrUnknownHeader if the header is not present.
func (t *Tree) AddBody(hash types.Hash, body []types.Extrinsic) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[hash]
	if !ok {
		return types.ErrUnknownHeader
	}
	n.body = body
	return nil
}

// GetHeader returns the header for hash, or ErrUnknownHeader.
func (t *Tree) GetHeader(hash types.Hash) (*types.Header, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[hash]
	if !ok {
		return nil, types.ErrUnknownHeader
	}
	return n.header, nil
}

// GetBody returns the body attached to hash (nil if no body has been
// attached yet), or ErrUnknownHeader if the header is not present.
func (t *Tree) GetBody(hash types.Hash) ([]types.Extrinsic, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[hash]
	if !ok {
		return nil, types.ErrUnknownHeader
	}
	return n.body, nil
}

// Children returns the (number, hash) of every known child of hash.
func (t *Tree) Children(hash types.Hash) []types.BlockInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[hash]
	if !ok {
		return nil
	}
	out := make([]types.BlockInfo, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c.header.Info())
	}
	return out
}

// DeepestLeaf returns the tip selected by the best-chain rule: longest
// chain; tie-break by greater cumulative weight; final tie-break by smaller
// hash.
func (t *Tree) DeepestLeaf() types.BlockInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best *node
	var walk func(n *node)
	walk = func(n *node) {
		if len(n.children) == 0 {
			if best == nil || better(n, best) {
				best = n
			}
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(t.root)
	return best.header.Info()
}

func better(a, b *node) bool {
	if a.header.Number != b.header.Number {
		return a.header.Number > b.header.Number
	}
	if a.weight != b.weight {
		return a.weight > b.weight
	}
	return a.header.Hash().Less(b.header.Hash())
}

// LastFinalized returns the block currently at the finality cursor.
func (t *Tree) LastFinalized() types.BlockInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root.header.Info()
}

// Finalize moves the finality cursor to block, pruning every branch not
// descending from it, and persists the canonical chain for the pruned
// range. The caller (BlockExecutor) is responsible for having already
// validated justification; Finalize itself only performs the structural
// move.
func (t *Tree) Finalize(block types.BlockInfo, db storage.Database) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[block.Hash]
	if !ok {
		return types.ErrUnknownHeader
	}
	if n.header.Number < t.root.header.Number {
		return nil
	}

	// Record the canonical hash for every newly-finalized height before
	// dropping sibling branches, so a restart can replay storage.CanonicalKey.
	for cur := n; cur != t.root && cur != nil; cur = cur.parent {
		if err := db.Put(storage.CanonicalKey(uint64(cur.header.Number)), cur.header.Hash().Bytes()); err != nil {
			return err
		}
	}

	t.pruneExcept(n)
	t.root = n
	return nil
}

// pruneExcept removes every node not an ancestor or descendant of keep from
// the index.
func (t *Tree) pruneExcept(keep *node) {
	ancestors := map[*node]bool{}
	for cur := keep; cur != nil; cur = cur.parent {
		ancestors[cur] = true
	}
	for hash, n := range t.nodes {
		if ancestors[n] || isDescendant(keep, n) {
			continue
		}
		delete(t.nodes, hash)
	}
	// Detach sibling branches from the ancestors we kept, so traversal
	// (DeepestLeaf, Children) never crosses into a pruned fork.
	for cur := keep; cur != nil && cur.parent != nil; cur = cur.parent {
		cur.parent.children = []*node{cur}
	}
}

func isDescendant(root, n *node) bool {
	for cur := n; cur != nil; cur = cur.parent {
		if cur == root {
			return true
		}
	}
	return false
}

// IsAncestor reports whether ancestor is a strict or non-strict ancestor of
// descendant, satisfying authority.AncestryChecker.
func (t *Tree) IsAncestor(ancestor, descendant types.BlockInfo) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[descendant.Hash]
	if !ok {
		return false
	}
	for cur := n; cur != nil; cur = cur.parent {
		if cur.header.Hash() == ancestor.Hash {
			return true
		}
	}
	return false
}

// KnownBlock reports whether b is present in the tree.
func (t *Tree) KnownBlock(b types.BlockInfo) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.nodes[b.Hash]
	return ok
}
