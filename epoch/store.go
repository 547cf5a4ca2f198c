// Package epoch persists the per-epoch descriptor map and the slot→epoch
// translation strategy an EpochStore is configured with.
package epoch

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/vanguardchain/vanguard/storage"
	"github.com/vanguardchain/vanguard/types"
)

// Strategy selects how a slot number maps to an epoch index.
type Strategy byte

const (
	// FromZero: epoch_index = slot / epoch_length.
	FromZero Strategy = iota
	// FromUnixEpoch: epoch_index = epoch0_index + (slot-epoch0_slot)/epoch_length,
	// anchored at the descriptor recorded via SetLast.
	FromUnixEpoch
)

// Store is the durable map from epoch index to EpochDescriptor, plus the
// "last observed epoch" anchor used by the FromUnixEpoch strategy. A store
// is configured with exactly one Strategy at construction and refuses to
// switch strategies on a populated store.
type Store struct {
	mu       sync.RWMutex
	db       storage.Database
	strategy Strategy
}

// New opens (or initializes) an epoch store over db using the given
// strategy. If db already recorded a different strategy than the one
// requested, New returns ErrConflict.
func New(db storage.Database, strategy Strategy) (*Store, error) {
	s := &Store{db: db, strategy: strategy}
	recorded, ok, err := s.recordedStrategy()
	if err != nil {
		return nil, err
	}
	if ok && recorded != strategy {
		return nil, errors.Wrap(types.ErrConflict, "epoch: store already configured with a different slot strategy")
	}
	if !ok {
		if err := s.db.Put(strategyKey(), []byte{byte(strategy)}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) recordedStrategy() (Strategy, bool, error) {
	v, err := s.db.Get(strategyKey())
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(v) != 1 {
		return 0, false, errors.New("epoch: malformed strategy record")
	}
	return Strategy(v[0]), true, nil
}

// PutEpoch stores descriptor under index. Idempotent: writing the same
// value again succeeds; writing a different value for an existing index
// fails with ErrConflict.
func (s *Store) PutEpoch(index uint64, descriptor types.EpochDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getEpochLocked(index)
	if err == nil {
		if !equalDescriptor(existing, descriptor) {
			return types.ErrConflict
		}
		return nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return err
	}
	return s.db.Put(storage.BabeEpochKey(index), encodeDescriptor(descriptor))
}

// GetEpoch returns the descriptor recorded for index, or ErrNotFound.
func (s *Store) GetEpoch(index uint64) (types.EpochDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEpochLocked(index)
}

func (s *Store) getEpochLocked(index uint64) (types.EpochDescriptor, error) {
	v, err := s.db.Get(storage.BabeEpochKey(index))
	if errors.Is(err, storage.ErrNotFound) {
		return types.EpochDescriptor{}, types.ErrNotFound
	}
	if err != nil {
		return types.EpochDescriptor{}, err
	}
	return decodeDescriptor(v)
}

// SetLast records descriptor as the last-known epoch anchor, used by
// FromUnixEpoch to derive epoch index from slot number.
func (s *Store) SetLast(descriptor types.EpochDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put(storage.BabeLastKey(), encodeDescriptor(descriptor))
}

// GetLast returns the last-known epoch anchor, or ErrNotFound if none has
// been recorded yet.
func (s *Store) GetLast() (types.EpochDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.db.Get(storage.BabeLastKey())
	if errors.Is(err, storage.ErrNotFound) {
		return types.EpochDescriptor{}, types.ErrNotFound
	}
	if err != nil {
		return types.EpochDescriptor{}, err
	}
	return decodeDescriptor(v)
}

// IndexForSlot derives the epoch index containing slot, per the store's
// configured strategy. FromUnixEpoch requires a prior SetLast call.
func (s *Store) IndexForSlot(slot types.SlotNumber, epochLength uint64) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.strategy {
	case FromZero:
		return uint64(slot) / epochLength, nil
	case FromUnixEpoch:
		last, err := s.GetLast()
		if err != nil {
			return 0, err
		}
		if uint64(slot) < uint64(last.StartSlot) {
			return 0, errors.New("epoch: slot precedes anchor")
		}
		delta := (uint64(slot) - uint64(last.StartSlot)) / epochLength
		return last.EpochIndex + delta, nil
	default:
		return 0, errors.New("epoch: unknown slot strategy")
	}
}

func strategyKey() []byte { return []byte(":babe:strategy") }

func equalDescriptor(a, b types.EpochDescriptor) bool {
	if a.EpochIndex != b.EpochIndex || a.StartSlot != b.StartSlot ||
		a.DurationSlots != b.DurationSlots || a.Randomness != b.Randomness ||
		len(a.Authorities) != len(b.Authorities) {
		return false
	}
	for i := range a.Authorities {
		if a.Authorities[i] != b.Authorities[i] {
			return false
		}
	}
	return true
}

func encodeDescriptor(d types.EpochDescriptor) []byte {
	buf := make([]byte, 0, 24+32+len(d.Authorities)*40)
	buf = appendU64(buf, d.EpochIndex)
	buf = appendU64(buf, uint64(d.StartSlot))
	buf = appendU64(buf, d.DurationSlots)
	buf = append(buf, d.Randomness[:]...)
	set := types.AuthoritySet{Authorities: d.Authorities}
	buf = append(buf, set.Encode()...)
	return buf
}

func decodeDescriptor(b []byte) (types.EpochDescriptor, error) {
	if len(b) < 24+32 {
		return types.EpochDescriptor{}, errors.New("epoch: malformed descriptor")
	}
	d := types.EpochDescriptor{
		EpochIndex:    binary.BigEndian.Uint64(b[0:8]),
		StartSlot:     types.SlotNumber(binary.BigEndian.Uint64(b[8:16])),
		DurationSlots: binary.BigEndian.Uint64(b[16:24]),
	}
	copy(d.Randomness[:], b[24:56])
	set, err := types.DecodeAuthoritySet(b[56:])
	if err != nil {
		return types.EpochDescriptor{}, err
	}
	d.Authorities = set.Authorities
	return d, nil
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
