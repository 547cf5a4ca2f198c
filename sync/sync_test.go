package sync

import (
	"context"
	"testing"

	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/types"
)

type fakeSource struct {
	pages map[types.Hash][]BlockData // keyed by "from" cursor
}

func (f *fakeSource) RequestRange(_ context.Context, _ ports.PeerID, from, _ types.Hash) ([]BlockData, error) {
	return f.pages[from], nil
}

type fakeImporter struct {
	imported []types.Hash
	fail     map[types.Hash]error
}

func (f *fakeImporter) Import(_ context.Context, block *types.Block) error {
	hash := block.Header.Hash()
	if err, ok := f.fail[hash]; ok {
		return err
	}
	f.imported = append(f.imported, hash)
	return nil
}

func chainOf(n int) []*types.Header {
	headers := make([]*types.Header, n)
	var parent types.Hash
	for i := 0; i < n; i++ {
		h := &types.Header{ParentHash: parent, Number: types.BlockNumber(i + 1), ExtrinsicsRoot: types.Hash{byte(i + 1)}}
		headers[i] = h
		parent = h.Hash()
	}
	return headers
}

func TestFillGapAppliesFullRangeInOnePage(t *testing.T) {
	headers := chainOf(3)
	genesisHash := headers[0].ParentHash
	target := headers[2].Info()

	source := &fakeSource{pages: map[types.Hash][]BlockData{
		genesisHash: {
			{Header: headers[0]}, {Header: headers[1]}, {Header: headers[2]},
		},
	}}
	importer := &fakeImporter{}
	s := New(source, importer, nil)

	err := s.FillGap(context.Background(), "peer1", types.BlockInfo{Hash: genesisHash}, target)
	if err != nil {
		t.Fatalf("fill gap: %v", err)
	}
	if len(importer.imported) != 3 {
		t.Fatalf("expected 3 blocks applied, got %d", len(importer.imported))
	}
	if !s.Progress().Done() {
		t.Fatal("expected progress to report done")
	}
}

func TestFillGapFollowsUpOnPartialPage(t *testing.T) {
	headers := chainOf(4)
	genesisHash := headers[0].ParentHash
	target := headers[3].Info()

	source := &fakeSource{pages: map[types.Hash][]BlockData{
		genesisHash:       {{Header: headers[0]}, {Header: headers[1]}},
		headers[1].Hash(): {{Header: headers[2]}, {Header: headers[3]}},
	}}
	importer := &fakeImporter{}
	s := New(source, importer, nil)

	if err := s.FillGap(context.Background(), "peer1", types.BlockInfo{Hash: genesisHash}, target); err != nil {
		t.Fatalf("fill gap: %v", err)
	}
	if len(importer.imported) != 4 {
		t.Fatalf("expected all 4 blocks applied across two pages, got %d", len(importer.imported))
	}
}

func TestFillGapTerminatesOnEmptyResponse(t *testing.T) {
	headers := chainOf(2)
	genesisHash := headers[0].ParentHash
	target := headers[1].Info()

	source := &fakeSource{pages: map[types.Hash][]BlockData{}} // always empty
	s := New(source, &fakeImporter{}, nil)

	err := s.FillGap(context.Background(), "peer1", types.BlockInfo{Hash: genesisHash}, target)
	if err != ErrEmptyResponse {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestFillGapRejectsConcurrentWalkAgainstSamePeer(t *testing.T) {
	headers := chainOf(1)
	genesisHash := headers[0].ParentHash
	target := headers[0].Info()

	source := &fakeSource{pages: map[types.Hash][]BlockData{genesisHash: {{Header: headers[0]}}}}
	s := New(source, &fakeImporter{}, nil)

	if err := s.claim("peer1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	defer s.release("peer1")

	if err := s.FillGap(context.Background(), "peer1", types.BlockInfo{Hash: genesisHash}, target); err != ErrAlreadySyncing {
		t.Fatalf("expected ErrAlreadySyncing, got %v", err)
	}
}
