package runtime

import (
	"context"
	"testing"

	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/storage"
	"github.com/vanguardchain/vanguard/types"
)

func TestTriePutGetRoundTrip(t *testing.T) {
	trie := NewTrie(storage.NewMemoryDB())

	root, err := trie.Put(types.Hash{}, []byte("alice"), []byte("100"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if root.IsZero() {
		t.Fatal("expected non-zero root after a write")
	}

	v, err := trie.Get(root, []byte("alice"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "100" {
		t.Fatalf("got %q, want %q", v, "100")
	}
}

func TestTrieGetUnknownRoot(t *testing.T) {
	trie := NewTrie(storage.NewMemoryDB())
	if _, err := trie.Get(types.BytesToHash([]byte("nonsense")), []byte("k")); err == nil {
		t.Fatal("expected error reading an unknown root")
	}
}

func TestTrieDeleteRestoresEmptyRoot(t *testing.T) {
	trie := NewTrie(storage.NewMemoryDB())

	root, err := trie.Put(types.Hash{}, []byte("k"), []byte("v"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	root, err = trie.Delete(root, []byte("k"))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !root.IsZero() {
		t.Fatal("expected deleting the only key to restore the zero root")
	}
}

func TestTrieCommitAtAppliesSetAndDelete(t *testing.T) {
	trie := NewTrie(storage.NewMemoryDB())

	root, err := trie.Put(types.Hash{}, []byte("a"), []byte("1"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	root, err = trie.CommitAt(root, ports.StateDiff{
		Set:    map[string][]byte{"b": []byte("2")},
		Delete: []string{"a"},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, err := trie.Get(root, []byte("a")); err == nil {
		t.Fatal("expected deleted key to be gone")
	}
	v, err := trie.Get(root, []byte("b"))
	if err != nil || string(v) != "2" {
		t.Fatalf("get b: %v %q", err, v)
	}
}

func TestReferenceExecuteBlockWritesState(t *testing.T) {
	trie := NewTrie(storage.NewMemoryDB())
	r := NewReference(trie)

	block := &types.Block{
		Header: &types.Header{Number: 1},
		Body:   []types.Extrinsic{[]byte("balance/alice=100"), []byte("balance/bob=50")},
	}

	diff, err := r.ExecuteBlock(context.Background(), types.Hash{}, block)
	if err != nil {
		t.Fatalf("execute block: %v", err)
	}
	if len(diff.Set) != 2 {
		t.Fatalf("got %d set entries, want 2", len(diff.Set))
	}

	root, err := trie.CommitAt(types.Hash{}, diff)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	v, err := r.Call(context.Background(), root, "state_get", []byte("balance/alice"))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(v) != "100" {
		t.Fatalf("got %q, want %q", v, "100")
	}
}

func TestReferenceExecuteBlockRejectsMalformedExtrinsic(t *testing.T) {
	trie := NewTrie(storage.NewMemoryDB())
	r := NewReference(trie)

	block := &types.Block{
		Header: &types.Header{Number: 1},
		Body:   []types.Extrinsic{[]byte("not-a-key-value-pair")},
	}
	_, err := r.ExecuteBlock(context.Background(), types.Hash{}, block)
	if err == nil {
		t.Fatal("expected malformed extrinsic to trap")
	}
	if cat, ok := types.CategoryOf(err); !ok || cat != types.CategoryIntegrity {
		t.Fatalf("got category %v, want CategoryIntegrity", cat)
	}
}

func TestReferenceCallUnknownMethod(t *testing.T) {
	trie := NewTrie(storage.NewMemoryDB())
	r := NewReference(trie)
	if _, err := r.Call(context.Background(), types.Hash{}, "nonsense", nil); err == nil {
		t.Fatal("expected unknown method to error")
	}
}
