package epoch

import (
	"testing"

	"github.com/vanguardchain/vanguard/storage"
	"github.com/vanguardchain/vanguard/types"
)

func descriptor(index uint64, start types.SlotNumber) types.EpochDescriptor {
	return types.EpochDescriptor{
		EpochIndex:    index,
		StartSlot:     start,
		DurationSlots: 100,
		Authorities: []types.Authority{
			{ID: types.AuthorityID{1}, Weight: 1},
		},
	}
}

func TestPutGetEpochRoundTrip(t *testing.T) {
	s, err := New(storage.NewMemoryDB(), FromZero)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	d := descriptor(0, 0)
	if err := s.PutEpoch(0, d); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.GetEpoch(0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EpochIndex != d.EpochIndex || got.DurationSlots != d.DurationSlots {
		t.Fatalf("got %+v, want %+v", got, d)
	}
}

func TestPutEpochIdempotent(t *testing.T) {
	s, _ := New(storage.NewMemoryDB(), FromZero)
	d := descriptor(0, 0)
	if err := s.PutEpoch(0, d); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := s.PutEpoch(0, d); err != nil {
		t.Fatalf("idempotent put should succeed: %v", err)
	}
}

func TestPutEpochConflict(t *testing.T) {
	s, _ := New(storage.NewMemoryDB(), FromZero)
	if err := s.PutEpoch(0, descriptor(0, 0)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutEpoch(0, descriptor(0, 5)); err != types.ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetEpochNotFound(t *testing.T) {
	s, _ := New(storage.NewMemoryDB(), FromZero)
	if _, err := s.GetEpoch(7); err != types.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStrategyConflictOnReopen(t *testing.T) {
	db := storage.NewMemoryDB()
	if _, err := New(db, FromZero); err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := New(db, FromUnixEpoch); err == nil {
		t.Fatal("expected conflict reopening with a different strategy")
	}
}

func TestIndexForSlotFromZero(t *testing.T) {
	s, _ := New(storage.NewMemoryDB(), FromZero)
	idx, err := s.IndexForSlot(250, 100)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if idx != 2 {
		t.Fatalf("got %d, want 2", idx)
	}
}

func TestIndexForSlotFromUnixEpoch(t *testing.T) {
	s, _ := New(storage.NewMemoryDB(), FromUnixEpoch)
	if err := s.SetLast(descriptor(5, 1000)); err != nil {
		t.Fatalf("set last: %v", err)
	}
	idx, err := s.IndexForSlot(1250, 100)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if idx != 7 {
		t.Fatalf("got %d, want 7", idx)
	}
}

func TestIndexForSlotFromUnixEpochRequiresAnchor(t *testing.T) {
	s, _ := New(storage.NewMemoryDB(), FromUnixEpoch)
	if _, err := s.IndexForSlot(100, 10); err == nil {
		t.Fatal("expected error without a recorded anchor")
	}
}
