package executor

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/blake2b"

	"github.com/vanguardchain/vanguard/authority"
	"github.com/vanguardchain/vanguard/babe"
	"github.com/vanguardchain/vanguard/blocktree"
	"github.com/vanguardchain/vanguard/epoch"
	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/storage"
	"github.com/vanguardchain/vanguard/types"
)

type fakeCrypto struct {
	local    types.AuthorityID
	forceWin bool
}

func (f *fakeCrypto) VerifySignature(id types.AuthorityID, msg, sig []byte) bool {
	return string(sig) == string(f.sign(id, msg))
}
func (f *fakeCrypto) sign(id types.AuthorityID, msg []byte) []byte {
	h := blake2b.Sum256(append(append([]byte{}, id[:]...), msg...))
	return h[:]
}
func (f *fakeCrypto) Sign(msg []byte) ([]byte, error) { return f.sign(f.local, msg), nil }
func (f *fakeCrypto) VRFProve(msg []byte) ([32]byte, [64]byte, error) {
	h := blake2b.Sum256(append(append([]byte{}, f.local[:]...), msg...))
	if f.forceWin {
		for i := range h {
			h[i] = 0
		}
	} else {
		for i := range h {
			h[i] = 0xff
		}
	}
	var proof [64]byte
	copy(proof[:], append(append([]byte{}, f.local[:]...), msg...))
	return h, proof, nil
}
func (f *fakeCrypto) VRFVerify(id types.AuthorityID, msg []byte, output [32]byte, proof [64]byte) bool {
	want := append(append([]byte{}, id[:]...), msg...)
	n := len(want)
	if n > len(proof) {
		// VRFProve keeps only the leading bytes that fit in the proof.
		n = len(proof)
	}
	for i := 0; i < n; i++ {
		if proof[i] != want[i] {
			return false
		}
	}
	h := blake2b.Sum256(want)
	if f.forceWin {
		for i := range h {
			h[i] = 0
		}
	} else {
		for i := range h {
			h[i] = 0xff
		}
	}
	return output == h
}
func (f *fakeCrypto) LocalAuthorityID() types.AuthorityID { return f.local }

type fakeRuntime struct{}

func (fakeRuntime) ExecuteBlock(_ context.Context, _ types.Hash, block *types.Block) (ports.StateDiff, error) {
	return ports.StateDiff{Set: map[string][]byte{"applied": block.Header.ExtrinsicsRoot.Bytes()}}, nil
}
func (fakeRuntime) Call(context.Context, types.Hash, string, []byte) ([]byte, error) { return nil, nil }

// fakeTrie commits by hashing (root || every set key/value), so CommitAt
// is deterministic and Get/Put/Delete are unused by these tests.
type fakeTrie struct{}

func (fakeTrie) Get(types.Hash, []byte) ([]byte, error)             { return nil, nil }
func (fakeTrie) Put(root types.Hash, _, _ []byte) (types.Hash, error) { return root, nil }
func (fakeTrie) Delete(root types.Hash, _ []byte) (types.Hash, error) { return root, nil }
func (fakeTrie) CommitAt(root types.Hash, diff ports.StateDiff) (types.Hash, error) {
	buf := append([]byte{}, root[:]...)
	for k, v := range diff.Set {
		buf = append(buf, []byte(k)...)
		buf = append(buf, v...)
	}
	return types.Hash(blake2b.Sum256(buf)), nil
}

type fakePool struct{ removed []types.Hash }

func (p *fakePool) Remove(hashes []types.Hash) { p.removed = append(p.removed, hashes...) }

func setup(t *testing.T) (*Executor, *blocktree.Tree, *authority.Manager, *fakeCrypto, types.EpochDescriptor) {
	t.Helper()
	db := storage.NewMemoryDB()
	genesis := &types.Header{Number: 0}
	tree := blocktree.New(genesis, func(*types.Header) uint64 { return 1 })

	crypto := &fakeCrypto{local: types.AuthorityID{1}, forceWin: true}
	set := types.AuthoritySet{Authorities: []types.Authority{{ID: crypto.local, Weight: 1}}}
	mgr, err := authority.New(db, tree, genesis.Info(), set)
	if err != nil {
		t.Fatalf("authority manager: %v", err)
	}

	epochs, err := epoch.New(storage.NewMemoryDB(), epoch.FromZero)
	if err != nil {
		t.Fatalf("epoch store: %v", err)
	}
	descriptor := types.EpochDescriptor{EpochIndex: 0, StartSlot: 0, DurationSlots: 100, Authorities: set.Authorities}
	validator := babe.NewValidator(epochs, crypto, 1.0, descriptor.DurationSlots)

	pool := &fakePool{}
	ex := New(db, tree, mgr, epochs, validator, fakeRuntime{}, fakeTrie{}, pool, nil)
	if err := ex.SeedGenesisEpoch(descriptor); err != nil {
		t.Fatalf("seed genesis epoch: %v", err)
	}
	return ex, tree, mgr, crypto, descriptor
}

func sealedBlock(t *testing.T, crypto *fakeCrypto, parent types.BlockInfo, slot types.SlotNumber, descriptor types.EpochDescriptor, body []types.Extrinsic) *types.Block {
	t.Helper()
	msg := append(append([]byte{}, descriptor.Randomness[:]...), encodeSlotEpoch(slot, descriptor.EpochIndex)...)
	output, proof, err := crypto.VRFProve(msg)
	if err != nil {
		t.Fatalf("vrf prove: %v", err)
	}
	pd := types.BABEPreDigest{Slot: slot, AuthorityIndex: 0, VRFOutput: output, VRFProof: proof}
	header := &types.Header{
		ParentHash:     parent.Hash,
		Number:         parent.Number + 1,
		ExtrinsicsRoot: types.ComputeExtrinsicsRoot(body),
		Digests: []types.Digest{
			{Kind: types.DigestPreRuntime, Engine: types.EngineBABE, Data: pd.Encode()},
		},
	}

	// Authoring executes speculatively against parent state to learn the
	// resulting root before sealing, same as the executor will redo (and
	// verify) on import.
	diff, _ := fakeRuntime{}.ExecuteBlock(context.Background(), types.Hash{}, &types.Block{Header: header, Body: body})
	root, _ := fakeTrie{}.CommitAt(types.Hash{}, diff)
	header.StateRoot = root

	sealMsg := header.Hash()
	sig, err := crypto.Sign(sealMsg.Bytes())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	header.Digests = append(header.Digests, types.Digest{Kind: types.DigestSeal, Engine: types.EngineBABE, Data: sig})

	return &types.Block{Header: header, Body: body}
}

func encodeSlotEpoch(slot types.SlotNumber, epochIndex uint64) []byte {
	buf := make([]byte, 16)
	put := func(off int, v uint64) {
		for i := 7; i >= 0; i-- {
			buf[off+i] = byte(v)
			v >>= 8
		}
	}
	put(0, uint64(slot))
	put(8, epochIndex)
	return buf
}

func TestImportAppliesAndAdvancesTree(t *testing.T) {
	ex, tree, _, crypto, descriptor := setup(t)
	genesis := tree.LastFinalized()

	block := sealedBlock(t, crypto, genesis, 5, descriptor, []types.Extrinsic{[]byte("tx1")})
	if err := ex.Import(context.Background(), block); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !tree.KnownBlock(block.Header.Info()) {
		t.Fatal("expected block tree to know the imported block")
	}
	got, err := tree.GetBody(block.Header.Hash())
	if err != nil || len(got) != 1 {
		t.Fatalf("expected body attached, got %v err %v", got, err)
	}
}

func TestImportRejectsUnknownParent(t *testing.T) {
	ex, _, _, crypto, descriptor := setup(t)
	orphan := types.BlockInfo{Number: 41, Hash: types.Hash{0xee}}
	block := sealedBlock(t, crypto, orphan, 5, descriptor, nil)
	if err := ex.Import(context.Background(), block); !errors.Is(err, types.ErrUnknownParent) {
		t.Fatalf("expected ErrUnknownParent, got %v", err)
	}
}

func TestImportRejectsStateRootMismatch(t *testing.T) {
	ex, tree, _, crypto, descriptor := setup(t)
	genesis := tree.LastFinalized()

	// Seal a header that commits to a deliberately wrong state root: the
	// signature is self-consistent (it covers whatever root is present at
	// signing time), but re-executing the block during import recomputes
	// the true root, which must disagree.
	pd := types.BABEPreDigest{Slot: 5, AuthorityIndex: 0}
	output, proof, _ := crypto.VRFProve(append(append([]byte{}, descriptor.Randomness[:]...), encodeSlotEpoch(5, descriptor.EpochIndex)...))
	pd.VRFOutput, pd.VRFProof = output, proof
	header := &types.Header{
		ParentHash:     genesis.Hash,
		Number:         genesis.Number + 1,
		ExtrinsicsRoot: types.ComputeExtrinsicsRoot(nil),
		StateRoot:      types.Hash{0xde, 0xad},
		Digests: []types.Digest{
			{Kind: types.DigestPreRuntime, Engine: types.EngineBABE, Data: pd.Encode()},
		},
	}
	sig, err := crypto.Sign(header.Hash().Bytes())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	header.Digests = append(header.Digests, types.Digest{Kind: types.DigestSeal, Engine: types.EngineBABE, Data: sig})

	block := &types.Block{Header: header}
	if err := ex.Import(context.Background(), block); err != types.ErrStateRootMismatch {
		t.Fatalf("expected ErrStateRootMismatch, got %v", err)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	ex, tree, _, crypto, descriptor := setup(t)
	genesis := tree.LastFinalized()
	block := sealedBlock(t, crypto, genesis, 5, descriptor, nil)
	if err := ex.Import(context.Background(), block); err != nil {
		t.Fatalf("first import: %v", err)
	}
	if err := ex.Import(context.Background(), block); err != nil {
		t.Fatalf("re-import should be a no-op, got %v", err)
	}
}

func TestFinalizeAdvancesTreeAndAuthority(t *testing.T) {
	ex, tree, mgr, crypto, descriptor := setup(t)
	genesis := tree.LastFinalized()
	block := sealedBlock(t, crypto, genesis, 5, descriptor, nil)
	if err := ex.Import(context.Background(), block); err != nil {
		t.Fatalf("import: %v", err)
	}

	justification := types.Justification{Target: block.Header.Info()}
	if err := ex.Finalize(justification); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if tree.LastFinalized().Hash != block.Header.Info().Hash {
		t.Fatal("expected tree finality cursor to advance")
	}
	authSet, err := mgr.Authorities(block.Header.Info())
	if err != nil {
		t.Fatalf("authorities: %v", err)
	}
	if len(authSet.Authorities) != 1 {
		t.Fatal("expected authority set to survive finalization")
	}
}
