package types

import "testing"

func TestHeaderMarshalRoundTrip(t *testing.T) {
	h := &Header{
		ParentHash:     Hash{1, 2, 3},
		Number:         7,
		StateRoot:      Hash{4, 5, 6},
		ExtrinsicsRoot: Hash{7, 8, 9},
		Digests: []Digest{
			{Kind: DigestPreRuntime, Engine: EngineBABE, Data: []byte("pre")},
			{Kind: DigestSeal, Engine: EngineBABE, Data: []byte("seal")},
		},
	}
	want := h.Hash()

	data, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Header
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Hash() != want {
		t.Fatalf("hash mismatch after round-trip: got %x want %x", got.Hash(), want)
	}
	if got.Number != h.Number || got.ParentHash != h.ParentHash {
		t.Fatal("field mismatch after round-trip")
	}
	if len(got.Digests) != 2 || string(got.Digests[1].Data) != "seal" {
		t.Fatal("digest mismatch after round-trip")
	}
}

func TestBlockMarshalRoundTrip(t *testing.T) {
	h := &Header{Number: 1, Digests: []Digest{{Kind: DigestSeal, Engine: EngineBABE, Data: []byte("s")}}}
	b := &Block{Header: h, Body: []Extrinsic{[]byte("tx1"), []byte("tx2")}}

	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Block
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Header.Hash() != h.Hash() {
		t.Fatal("header hash mismatch after round-trip")
	}
	if len(got.Body) != 2 || string(got.Body[0]) != "tx1" || string(got.Body[1]) != "tx2" {
		t.Fatal("body mismatch after round-trip")
	}
}

func TestBlockMarshalEmptyBody(t *testing.T) {
	h := &Header{Number: 0}
	b := &Block{Header: h}

	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Block
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Body) != 0 {
		t.Fatal("expected empty body to round-trip as empty")
	}
}
