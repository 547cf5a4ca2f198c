// Package txpool implements the TransactionPool described by §4.8: a
// tag-based (requires/provides) readiness pool. A transaction becomes ready
// the moment every tag it requires is provided by some already-ready
// transaction; submitting or removing a transaction can promote or demote
// an entire chain of dependents.
package txpool

import (
	"sync"

	"github.com/vanguardchain/vanguard/types"
)

// Tag is an opaque dependency key a transaction requires or provides (for
// example, an account nonce or a UTXO identifier). The pool never
// interprets tag contents.
type Tag string

// Transaction is a candidate extrinsic plus the tag graph the pool
// schedules it by.
type Transaction struct {
	Extrinsic types.Extrinsic
	Requires  []Tag
	Provides  []Tag
	Priority  uint64 // higher sorts first within Ready()
}

type entry struct {
	tx          Transaction
	hash        types.Hash
	unsatisfied int
}

// Config bounds the pool described by §4.8 and §5's resource model.
type Config struct {
	MaxReady    int
	StaleWindow uint64 // blocks a tx may sit before remove_stale evicts it
	BanWindow   uint64 // blocks an evicted tx is refused resubmission for
}

// DefaultConfig matches the teacher's mempool defaults in order of
// magnitude, scaled down for this chain's much smaller validator set.
func DefaultConfig() Config {
	return Config{MaxReady: 4096, StaleWindow: 256, BanWindow: 64}
}

// Pool is the TransactionPool described by §4.8.
type Pool struct {
	mu sync.Mutex

	cfg Config

	byHash  map[types.Hash]*entry
	ready   map[types.Hash]*entry
	waiting map[types.Hash]*entry

	postponed []types.Hash // FIFO overflow once ready is at MaxReady

	tagProvider map[Tag]types.Hash   // tag -> the one ready tx providing it
	tagWaiters  map[Tag][]types.Hash // tag -> waiting tx hashes blocked on it

	moderator *Moderator
	journal   *Journal
}

// New constructs an empty pool. journal may be nil to disable persistence
// (tests, or an in-memory-only node).
func New(cfg Config, journal *Journal) *Pool {
	return &Pool{
		cfg:         cfg,
		byHash:      map[types.Hash]*entry{},
		ready:       map[types.Hash]*entry{},
		waiting:     map[types.Hash]*entry{},
		tagProvider: map[Tag]types.Hash{},
		tagWaiters:  map[Tag][]types.Hash{},
		moderator:   NewModerator(cfg.StaleWindow, cfg.BanWindow),
		journal:     journal,
	}
}

// Submit adds tx to the pool. Fails ErrAlreadyImported if its hash is
// already known (including currently banned by the Moderator). A ready
// transaction that finds the ready set at MaxReady joins the postponed
// overflow, which has no bound, so Submit does not return ErrPoolFull.
func (p *Pool) Submit(tx Transaction, at types.BlockNumber) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash := tx.Extrinsic.Hash()
	if _, ok := p.byHash[hash]; ok {
		return types.ErrAlreadyImported
	}
	if p.moderator.Banned(hash, at) {
		return types.ErrAlreadyImported
	}

	unsatisfied := 0
	for _, tag := range tx.Requires {
		if _, ok := p.tagProvider[tag]; !ok {
			unsatisfied++
		}
	}

	e := &entry{tx: tx, hash: hash, unsatisfied: unsatisfied}
	p.byHash[hash] = e
	p.moderator.Observe(hash, at)
	if p.journal != nil {
		if err := p.journal.Append(hash, tx); err != nil {
			delete(p.byHash, hash)
			return err
		}
	}

	if unsatisfied == 0 {
		if !p.promote(e) {
			delete(p.byHash, hash)
			if p.journal != nil {
				_ = p.journal.Remove(hash)
			}
			return types.ErrPoolFull
		}
		return nil
	}

	p.waiting[hash] = e
	for _, tag := range tx.Requires {
		if _, ok := p.tagProvider[tag]; !ok {
			p.tagWaiters[tag] = append(p.tagWaiters[tag], hash)
		}
	}
	return nil
}

// promote moves e into the ready set (or, if it's saturated, the postponed
// overflow), registers its provided tags, and cascades promotion to every
// waiting transaction that was blocked only on e's tags. Always returns
// true: the postponed overflow has no bound.
func (p *Pool) promote(e *entry) bool {
	delete(p.waiting, e.hash)
	if len(p.ready) >= p.cfg.MaxReady {
		p.postponed = append(p.postponed, e.hash)
		return true
	}
	p.ready[e.hash] = e
	for _, tag := range e.tx.Provides {
		if _, taken := p.tagProvider[tag]; !taken {
			p.tagProvider[tag] = e.hash
		}
	}
	for _, tag := range e.tx.Provides {
		waiters := p.tagWaiters[tag]
		if p.tagProvider[tag] != e.hash {
			continue // another ready tx already claimed this tag
		}
		for _, depHash := range waiters {
			dep, ok := p.waiting[depHash]
			if !ok {
				continue
			}
			dep.unsatisfied--
			if dep.unsatisfied <= 0 {
				p.promote(dep)
			}
		}
	}
	p.drainPostponed()
	return true
}

// drainPostponed moves as many postponed entries into ready as there is
// room for, in FIFO order.
func (p *Pool) drainPostponed() {
	for len(p.postponed) > 0 && len(p.ready) < p.cfg.MaxReady {
		hash := p.postponed[0]
		p.postponed = p.postponed[1:]
		e, ok := p.byHash[hash]
		if !ok {
			continue
		}
		p.ready[hash] = e
		for _, tag := range e.tx.Provides {
			if _, taken := p.tagProvider[tag]; !taken {
				p.tagProvider[tag] = hash
			}
		}
	}
}

// Remove unlinks hash from the pool. If it was ready and provided tags
// other ready transactions depended on, those dependents (and, in turn,
// theirs) are demoted back to waiting. Absence is not an error.
func (p *Pool) Remove(hashes []types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, hash := range hashes {
		p.removeLocked(hash)
	}
}

func (p *Pool) removeLocked(hash types.Hash) {
	if _, ok := p.byHash[hash]; !ok {
		return
	}
	if e, ok := p.ready[hash]; ok {
		p.demote(e)
	}
	delete(p.waiting, hash)
	delete(p.byHash, hash)
	p.removeFromPostponed(hash)
	if p.journal != nil {
		_ = p.journal.Remove(hash)
	}
	p.drainPostponed()
}

// demote drops a ready entry, rolling back the tags it provided and
// cascading the demotion to every ready transaction left unsatisfied.
func (p *Pool) demote(e *entry) {
	delete(p.ready, e.hash)
	for _, tag := range e.tx.Provides {
		if p.tagProvider[tag] != e.hash {
			continue
		}
		delete(p.tagProvider, tag)
		for _, dep := range p.ready {
			for _, req := range dep.tx.Requires {
				if req == tag {
					p.demote(dep)
					break
				}
			}
		}
	}
	e.unsatisfied = p.recomputeUnsatisfied(e.tx)
	p.waiting[e.hash] = e
	for _, tag := range e.tx.Requires {
		if _, ok := p.tagProvider[tag]; !ok {
			p.tagWaiters[tag] = append(p.tagWaiters[tag], e.hash)
		}
	}
}

func (p *Pool) recomputeUnsatisfied(tx Transaction) int {
	n := 0
	for _, tag := range tx.Requires {
		if _, ok := p.tagProvider[tag]; !ok {
			n++
		}
	}
	return n
}

func (p *Pool) removeFromPostponed(hash types.Hash) {
	for i, h := range p.postponed {
		if h == hash {
			p.postponed = append(p.postponed[:i], p.postponed[i+1:]...)
			return
		}
	}
}

// RemoveStale evicts every transaction the Moderator considers aged out as
// of atBlock, banning each from immediate resubmission.
func (p *Pool) RemoveStale(atBlock types.BlockNumber) []types.Hash {
	p.mu.Lock()
	stale := p.moderator.Stale(atBlock)
	p.mu.Unlock()

	for _, hash := range stale {
		p.Remove([]types.Hash{hash})
	}
	return stale
}

// Ready returns a snapshot of every currently ready transaction's
// extrinsic, ordered by descending Priority and, within a tie, ascending
// hash for determinism.
func (p *Pool) Ready() []types.Extrinsic {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*entry, 0, len(p.ready))
	for _, e := range p.ready {
		out = append(out, e)
	}
	sortEntries(out)

	extrinsics := make([]types.Extrinsic, len(out))
	for i, e := range out {
		extrinsics[i] = e.tx.Extrinsic
	}
	return extrinsics
}

// Len reports the total number of transactions held (ready + waiting +
// postponed).
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byHash)
}

func sortEntries(es []*entry) {
	for i := 1; i < len(es); i++ {
		for j := i; j > 0 && less(es[j], es[j-1]); j-- {
			es[j], es[j-1] = es[j-1], es[j]
		}
	}
}

func less(a, b *entry) bool {
	if a.tx.Priority != b.tx.Priority {
		return a.tx.Priority > b.tx.Priority
	}
	return a.hash.Less(b.hash)
}
