package txpool

import "github.com/vanguardchain/vanguard/types"

// Moderator tracks per-transaction age and enforces a resubmission ban
// after eviction, per §4.8's remove_stale.
type Moderator struct {
	staleWindow types.BlockNumber
	banWindow   types.BlockNumber

	firstSeen   map[types.Hash]types.BlockNumber
	bannedUntil map[types.Hash]types.BlockNumber
}

// NewModerator builds a Moderator. A transaction first observed at block N
// is considered stale once the pool is asked to judge staleness at block
// N+staleWindow or later; an evicted hash is refused resubmission until
// banWindow blocks after its eviction.
func NewModerator(staleWindow, banWindow uint64) *Moderator {
	return &Moderator{
		staleWindow: types.BlockNumber(staleWindow),
		banWindow:   types.BlockNumber(banWindow),
		firstSeen:   map[types.Hash]types.BlockNumber{},
		bannedUntil: map[types.Hash]types.BlockNumber{},
	}
}

// Observe records hash as first seen at atBlock, if not already tracked.
func (m *Moderator) Observe(hash types.Hash, atBlock types.BlockNumber) {
	if _, ok := m.firstSeen[hash]; !ok {
		m.firstSeen[hash] = atBlock
	}
}

// Banned reports whether hash is currently refused resubmission.
func (m *Moderator) Banned(hash types.Hash, atBlock types.BlockNumber) bool {
	until, ok := m.bannedUntil[hash]
	if !ok {
		return false
	}
	if atBlock >= until {
		delete(m.bannedUntil, hash)
		return false
	}
	return true
}

// Stale returns every tracked hash whose age at atBlock has reached
// staleWindow, and bans each of them from resubmission until banWindow
// blocks later.
func (m *Moderator) Stale(atBlock types.BlockNumber) []types.Hash {
	var stale []types.Hash
	for hash, seenAt := range m.firstSeen {
		if atBlock < seenAt+m.staleWindow {
			continue
		}
		stale = append(stale, hash)
		delete(m.firstSeen, hash)
		m.bannedUntil[hash] = atBlock + m.banWindow
	}
	return stale
}
