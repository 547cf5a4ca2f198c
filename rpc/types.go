// Package rpc implements ports.RPCEmitter as a gorilla/websocket push
// transport: every call to an Emit* method is fanned out as a JSON event
// to whichever connections have subscribed to that event kind. Session
// and JSON-RPC method dispatch are out of scope — this package only owns
// the emission edge the core drives.
package rpc

import (
	"encoding/json"

	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/types"
)

// EventKind names one of the four subscription feeds ports.RPCEmitter
// can push to.
type EventKind string

const (
	EventNewHead         EventKind = "newHead"
	EventFinalizedHead   EventKind = "finalizedHead"
	EventStorageChanged  EventKind = "storageChanged"
	EventExtrinsicStatus EventKind = "extrinsicStatus"
)

// Event is the envelope every pushed message is wrapped in, so a client
// can dispatch on Kind without needing to know each payload's shape.
type Event struct {
	Kind   EventKind       `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// headerPayload mirrors the fields of types.Header a subscriber needs,
// without requiring the client to understand this repo's digest codec.
type headerPayload struct {
	ParentHash     types.Hash `json:"parentHash"`
	Number         uint64     `json:"number"`
	StateRoot      types.Hash `json:"stateRoot"`
	ExtrinsicsRoot types.Hash `json:"extrinsicsRoot"`
	Hash           types.Hash `json:"hash"`
}

func newHeaderPayload(h *types.Header) headerPayload {
	return headerPayload{
		ParentHash:     h.ParentHash,
		Number:         uint64(h.Number),
		StateRoot:      h.StateRoot,
		ExtrinsicsRoot: h.ExtrinsicsRoot,
		Hash:           h.Hash(),
	}
}

type storageChangedPayload struct {
	Block   types.Hash        `json:"block"`
	Changes map[string][]byte `json:"changes"`
}

type extrinsicStatusPayload struct {
	Hash   types.Hash               `json:"hash"`
	Kind   ports.ExtrinsicStatusKind `json:"kind"`
	Block  types.Hash               `json:"block,omitempty"`
	Peers  []ports.PeerID           `json:"peers,omitempty"`
}

func marshalEvent(kind EventKind, payload any) ([]byte, error) {
	params, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Kind: kind, Params: params})
}
