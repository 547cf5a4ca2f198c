// Package network implements the wire protocol described by §6: the
// block-gossip and GRANDPA message set carried over ports.NetworkHost
// streams, binary-encoded and length-prefixed.
package network

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/vanguardchain/vanguard/grandpa"
	"github.com/vanguardchain/vanguard/types"
)

// Protocol IDs, one per message kind, following the teacher's deleted
// p2p package's "/name/version" convention.
const (
	ProtocolBlockAnnounce = "/vanguard/block-announce/1"
	ProtocolBlocksRequest = "/vanguard/blocks/1"
	ProtocolStatus        = "/vanguard/status/1"
	ProtocolTransactions  = "/vanguard/transactions/1"
	ProtocolGrandpa       = "/vanguard/grandpa/1"
)

// Direction selects ascending or descending block order in a BlocksRequest.
type Direction uint8

const (
	DirectionAscending Direction = iota
	DirectionDescending
)

// Fields is a bitmask of which optional BlockData members a BlocksRequest
// asks the responder to populate.
type Fields uint32

const (
	FieldHeader Fields = 1 << iota
	FieldBody
	FieldJustification
)

// BlockAnnounce carries a single newly-produced header to peers.
type BlockAnnounce struct {
	Header *types.Header
}

// BlocksRequest asks a peer for a range of blocks starting at From (by hash)
// and proceeding in Direction, up to Max items or until To is reached.
type BlocksRequest struct {
	ID        uint64
	Fields    Fields
	From      types.Hash
	To        types.Hash // zero means unbounded
	Direction Direction
	Max       uint32 // zero means no limit
}

// BlockData is one entry of a BlocksResponse; unrequested optional fields
// are left at their zero value.
type BlockData struct {
	Hash          types.Hash
	Header        *types.Header
	Body          []types.Extrinsic
	Justification *types.Justification
}

// BlocksResponse answers a BlocksRequest with the same ID.
type BlocksResponse struct {
	ID    uint64
	Items []BlockData
}

// Status is the handshake exchanged when a stream to a new peer opens.
type Status struct {
	Roles       uint8
	BestBlock   types.BlockInfo
	GenesisHash types.Hash
}

// Transactions carries a batch of extrinsics for pool gossip.
type Transactions struct {
	Extrinsics []types.Extrinsic
}

// GrandpaMessageKind tags the variant carried by a GrandpaMessage.
type GrandpaMessageKind uint8

const (
	GrandpaVote GrandpaMessageKind = iota
	GrandpaCommit
	GrandpaNeighbor
	GrandpaCatchUpRequest
	GrandpaCatchUpResponse
)

// GrandpaMessage is the tagged union carrying any of the five GRANDPA wire
// shapes over one protocol, per §6. The payload types are grandpa's own —
// this package only adds the envelope and binary framing.
type GrandpaMessage struct {
	Kind           GrandpaMessageKind
	Vote           *types.SignedVote
	Commit         *types.Justification
	Neighbor       *grandpa.NeighborPacket
	CatchUpRequest *grandpa.CatchUpRequest
	CatchUpResp    *grandpa.CatchUpResponse
}

var errTruncatedMessage = errors.New("network: truncated message")

// Encode and Decode below give every message type a length-prefixed binary
// form, reusing types.Header/types.Block's own codec rather than a second
// one.

func putUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func putUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func getUint32(data []byte, off int) (uint32, error) {
	if off+4 > len(data) {
		return 0, errTruncatedMessage
	}
	return binary.BigEndian.Uint32(data[off : off+4]), nil
}

func getUint64(data []byte, off int) (uint64, error) {
	if off+8 > len(data) {
		return 0, errTruncatedMessage
	}
	return binary.BigEndian.Uint64(data[off : off+8]), nil
}

func putBytes(buf, b []byte) []byte {
	buf = putUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func getBytes(data []byte, off int) ([]byte, int, error) {
	n, err := getUint32(data, off)
	if err != nil {
		return nil, 0, err
	}
	start, end := off+4, off+4+int(n)
	if end > len(data) {
		return nil, 0, errTruncatedMessage
	}
	return append([]byte(nil), data[start:end]...), 4 + int(n), nil
}

// Encode serializes a BlockAnnounce.
func (m BlockAnnounce) Encode() ([]byte, error) {
	headerBytes, err := m.Header.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return putBytes(nil, headerBytes), nil
}

// DecodeBlockAnnounce parses the wire form produced by Encode.
func DecodeBlockAnnounce(data []byte) (BlockAnnounce, error) {
	headerBytes, _, err := getBytes(data, 0)
	if err != nil {
		return BlockAnnounce{}, err
	}
	header := &types.Header{}
	if err := header.UnmarshalBinary(headerBytes); err != nil {
		return BlockAnnounce{}, err
	}
	return BlockAnnounce{Header: header}, nil
}

// Encode serializes a BlocksRequest.
func (m BlocksRequest) Encode() []byte {
	buf := putUint64(nil, m.ID)
	buf = putUint32(buf, uint32(m.Fields))
	buf = append(buf, m.From[:]...)
	buf = append(buf, m.To[:]...)
	buf = append(buf, byte(m.Direction))
	buf = putUint32(buf, m.Max)
	return buf
}

// DecodeBlocksRequest parses the wire form produced by Encode.
func DecodeBlocksRequest(data []byte) (BlocksRequest, error) {
	const fixed = 8 + 4 + types.HashLength + types.HashLength + 1 + 4
	if len(data) < fixed {
		return BlocksRequest{}, errTruncatedMessage
	}
	off := 0
	id, _ := getUint64(data, off)
	off += 8
	fields, _ := getUint32(data, off)
	off += 4
	var from, to types.Hash
	copy(from[:], data[off:off+types.HashLength])
	off += types.HashLength
	copy(to[:], data[off:off+types.HashLength])
	off += types.HashLength
	direction := Direction(data[off])
	off++
	max, _ := getUint32(data, off)
	return BlocksRequest{ID: id, Fields: Fields(fields), From: from, To: to, Direction: direction, Max: max}, nil
}

// Encode serializes a BlocksResponse.
func (m BlocksResponse) Encode() ([]byte, error) {
	buf := putUint64(nil, m.ID)
	buf = putUint32(buf, uint32(len(m.Items)))
	for _, item := range m.Items {
		itemBytes, err := encodeBlockData(item)
		if err != nil {
			return nil, err
		}
		buf = putBytes(buf, itemBytes)
	}
	return buf, nil
}

// DecodeBlocksResponse parses the wire form produced by Encode.
func DecodeBlocksResponse(data []byte) (BlocksResponse, error) {
	id, err := getUint64(data, 0)
	if err != nil {
		return BlocksResponse{}, err
	}
	count, err := getUint32(data, 8)
	if err != nil {
		return BlocksResponse{}, err
	}
	off := 12
	items := make([]BlockData, 0, count)
	for i := uint32(0); i < count; i++ {
		raw, n, err := getBytes(data, off)
		if err != nil {
			return BlocksResponse{}, err
		}
		off += n
		item, err := decodeBlockData(raw)
		if err != nil {
			return BlocksResponse{}, err
		}
		items = append(items, item)
	}
	return BlocksResponse{ID: id, Items: items}, nil
}

func encodeBlockData(d BlockData) ([]byte, error) {
	buf := append([]byte{}, d.Hash[:]...)

	if d.Header != nil {
		headerBytes, err := d.Header.MarshalBinary()
		if err != nil {
			return nil, err
		}
		buf = append(buf, 1)
		buf = putBytes(buf, headerBytes)
	} else {
		buf = append(buf, 0)
	}

	if d.Body != nil {
		buf = append(buf, 1)
		buf = putUint32(buf, uint32(len(d.Body)))
		for _, e := range d.Body {
			buf = putBytes(buf, e)
		}
	} else {
		buf = append(buf, 0)
	}

	if d.Justification != nil {
		buf = append(buf, 1)
		buf = putBytes(buf, d.Justification.Target.Hash[:])
		buf = putUint64(buf, uint64(d.Justification.Target.Number))
	} else {
		buf = append(buf, 0)
	}

	return buf, nil
}

func decodeBlockData(data []byte) (BlockData, error) {
	if len(data) < types.HashLength+1 {
		return BlockData{}, errTruncatedMessage
	}
	var d BlockData
	copy(d.Hash[:], data[:types.HashLength])
	off := types.HashLength

	hasHeader := data[off]
	off++
	if hasHeader == 1 {
		headerBytes, n, err := getBytes(data, off)
		if err != nil {
			return BlockData{}, err
		}
		off += n
		header := &types.Header{}
		if err := header.UnmarshalBinary(headerBytes); err != nil {
			return BlockData{}, err
		}
		d.Header = header
	}

	if off >= len(data) {
		return BlockData{}, errTruncatedMessage
	}
	hasBody := data[off]
	off++
	if hasBody == 1 {
		count, err := getUint32(data, off)
		if err != nil {
			return BlockData{}, err
		}
		off += 4
		body := make([]types.Extrinsic, 0, count)
		for i := uint32(0); i < count; i++ {
			raw, n, err := getBytes(data, off)
			if err != nil {
				return BlockData{}, err
			}
			off += n
			body = append(body, types.Extrinsic(raw))
		}
		d.Body = body
	}

	if off >= len(data) {
		return BlockData{}, errTruncatedMessage
	}
	hasJust := data[off]
	off++
	if hasJust == 1 {
		hashBytes, n, err := getBytes(data, off)
		if err != nil {
			return BlockData{}, err
		}
		off += n
		number, err := getUint64(data, off)
		if err != nil {
			return BlockData{}, err
		}
		var hash types.Hash
		copy(hash[:], hashBytes)
		d.Justification = &types.Justification{Target: types.BlockInfo{Hash: hash, Number: types.BlockNumber(number)}}
	}

	return d, nil
}

// Encode serializes a Status handshake.
func (m Status) Encode() []byte {
	buf := []byte{m.Roles}
	buf = putUint64(buf, uint64(m.BestBlock.Number))
	buf = append(buf, m.BestBlock.Hash[:]...)
	buf = append(buf, m.GenesisHash[:]...)
	return buf
}

// DecodeStatus parses the wire form produced by Encode.
func DecodeStatus(data []byte) (Status, error) {
	if len(data) != 1+8+types.HashLength+types.HashLength {
		return Status{}, errTruncatedMessage
	}
	off := 0
	roles := data[off]
	off++
	number, _ := getUint64(data, off)
	off += 8
	var best, genesis types.Hash
	copy(best[:], data[off:off+types.HashLength])
	off += types.HashLength
	copy(genesis[:], data[off:off+types.HashLength])
	return Status{Roles: roles, BestBlock: types.BlockInfo{Number: types.BlockNumber(number), Hash: best}, GenesisHash: genesis}, nil
}

// Encode serializes a Transactions batch.
func (m Transactions) Encode() []byte {
	buf := putUint32(nil, uint32(len(m.Extrinsics)))
	for _, e := range m.Extrinsics {
		buf = putBytes(buf, e)
	}
	return buf
}

// DecodeTransactions parses the wire form produced by Encode.
func DecodeTransactions(data []byte) (Transactions, error) {
	count, err := getUint32(data, 0)
	if err != nil {
		return Transactions{}, err
	}
	off := 4
	extrinsics := make([]types.Extrinsic, 0, count)
	for i := uint32(0); i < count; i++ {
		raw, n, err := getBytes(data, off)
		if err != nil {
			return Transactions{}, err
		}
		off += n
		extrinsics = append(extrinsics, types.Extrinsic(raw))
	}
	return Transactions{Extrinsics: extrinsics}, nil
}

func putBlockInfo(buf []byte, b types.BlockInfo) []byte {
	buf = putUint64(buf, uint64(b.Number))
	return append(buf, b.Hash[:]...)
}

func getBlockInfo(data []byte, off int) (types.BlockInfo, int, error) {
	number, err := getUint64(data, off)
	if err != nil {
		return types.BlockInfo{}, 0, err
	}
	start := off + 8
	if start+types.HashLength > len(data) {
		return types.BlockInfo{}, 0, errTruncatedMessage
	}
	var hash types.Hash
	copy(hash[:], data[start:start+types.HashLength])
	return types.BlockInfo{Number: types.BlockNumber(number), Hash: hash}, 8 + types.HashLength, nil
}

func putVote(buf []byte, v types.SignedVote) []byte {
	buf = append(buf, byte(v.Kind))
	buf = putUint64(buf, v.Round)
	buf = putUint64(buf, v.SetID)
	buf = putBlockInfo(buf, v.Target)
	buf = append(buf, v.VoterID[:]...)
	buf = putBytes(buf, v.Signature)
	return buf
}

func getVote(data []byte, off int) (types.SignedVote, int, error) {
	start := off
	if off+1 > len(data) {
		return types.SignedVote{}, 0, errTruncatedMessage
	}
	kind := types.VoteKind(data[off])
	off++
	round, err := getUint64(data, off)
	if err != nil {
		return types.SignedVote{}, 0, err
	}
	off += 8
	setID, err := getUint64(data, off)
	if err != nil {
		return types.SignedVote{}, 0, err
	}
	off += 8
	target, n, err := getBlockInfo(data, off)
	if err != nil {
		return types.SignedVote{}, 0, err
	}
	off += n
	if off+types.AuthorityIDLength > len(data) {
		return types.SignedVote{}, 0, errTruncatedMessage
	}
	var voterID types.AuthorityID
	copy(voterID[:], data[off:off+types.AuthorityIDLength])
	off += types.AuthorityIDLength
	sig, n, err := getBytes(data, off)
	if err != nil {
		return types.SignedVote{}, 0, err
	}
	off += n
	return types.SignedVote{Kind: kind, Round: round, SetID: setID, Target: target, VoterID: voterID, Signature: sig}, off - start, nil
}

func putJustification(buf []byte, j types.Justification) []byte {
	buf = putBlockInfo(buf, j.Target)
	buf = putUint32(buf, uint32(len(j.Precommits)))
	for _, v := range j.Precommits {
		buf = putVote(buf, v)
	}
	return buf
}

func getJustification(data []byte, off int) (types.Justification, int, error) {
	start := off
	target, n, err := getBlockInfo(data, off)
	if err != nil {
		return types.Justification{}, 0, err
	}
	off += n
	count, err := getUint32(data, off)
	if err != nil {
		return types.Justification{}, 0, err
	}
	off += 4
	precommits := make([]types.SignedVote, 0, count)
	for i := uint32(0); i < count; i++ {
		v, n, err := getVote(data, off)
		if err != nil {
			return types.Justification{}, 0, err
		}
		off += n
		precommits = append(precommits, v)
	}
	return types.Justification{Target: target, Precommits: precommits}, off - start, nil
}

// Encode serializes a GrandpaMessage's active variant, tagged by Kind.
func (m GrandpaMessage) Encode() ([]byte, error) {
	buf := []byte{byte(m.Kind)}
	switch m.Kind {
	case GrandpaVote:
		if m.Vote == nil {
			return nil, errors.New("network: GrandpaVote message missing Vote")
		}
		buf = putVote(buf, *m.Vote)
	case GrandpaCommit:
		if m.Commit == nil {
			return nil, errors.New("network: GrandpaCommit message missing Commit")
		}
		buf = putJustification(buf, *m.Commit)
	case GrandpaNeighbor:
		if m.Neighbor == nil {
			return nil, errors.New("network: GrandpaNeighbor message missing Neighbor")
		}
		buf = putUint64(buf, m.Neighbor.Round)
		buf = putUint64(buf, m.Neighbor.SetID)
		buf = putBlockInfo(buf, m.Neighbor.LastFinalized)
	case GrandpaCatchUpRequest:
		if m.CatchUpRequest == nil {
			return nil, errors.New("network: GrandpaCatchUpRequest message missing CatchUpRequest")
		}
		buf = putUint64(buf, m.CatchUpRequest.Round)
		buf = putUint64(buf, m.CatchUpRequest.SetID)
	case GrandpaCatchUpResponse:
		if m.CatchUpResp == nil {
			return nil, errors.New("network: GrandpaCatchUpResponse message missing CatchUpResp")
		}
		buf = putUint64(buf, m.CatchUpResp.Round)
		buf = putUint64(buf, m.CatchUpResp.SetID)
		buf = putBlockInfo(buf, m.CatchUpResp.Base)
		buf = putUint32(buf, uint32(len(m.CatchUpResp.Prevotes)))
		for _, v := range m.CatchUpResp.Prevotes {
			buf = putVote(buf, v)
		}
		buf = putUint32(buf, uint32(len(m.CatchUpResp.Precommits)))
		for _, v := range m.CatchUpResp.Precommits {
			buf = putVote(buf, v)
		}
	default:
		return nil, errors.Newf("network: unknown grandpa message kind %d", m.Kind)
	}
	return buf, nil
}

// DecodeGrandpaMessage parses the wire form produced by Encode.
func DecodeGrandpaMessage(data []byte) (GrandpaMessage, error) {
	if len(data) < 1 {
		return GrandpaMessage{}, errTruncatedMessage
	}
	kind := GrandpaMessageKind(data[0])
	off := 1
	m := GrandpaMessage{Kind: kind}
	switch kind {
	case GrandpaVote:
		v, _, err := getVote(data, off)
		if err != nil {
			return GrandpaMessage{}, err
		}
		m.Vote = &v
	case GrandpaCommit:
		j, _, err := getJustification(data, off)
		if err != nil {
			return GrandpaMessage{}, err
		}
		m.Commit = &j
	case GrandpaNeighbor:
		round, err := getUint64(data, off)
		if err != nil {
			return GrandpaMessage{}, err
		}
		off += 8
		setID, err := getUint64(data, off)
		if err != nil {
			return GrandpaMessage{}, err
		}
		off += 8
		last, _, err := getBlockInfo(data, off)
		if err != nil {
			return GrandpaMessage{}, err
		}
		m.Neighbor = &grandpa.NeighborPacket{Round: round, SetID: setID, LastFinalized: last}
	case GrandpaCatchUpRequest:
		round, err := getUint64(data, off)
		if err != nil {
			return GrandpaMessage{}, err
		}
		off += 8
		setID, err := getUint64(data, off)
		if err != nil {
			return GrandpaMessage{}, err
		}
		m.CatchUpRequest = &grandpa.CatchUpRequest{Round: round, SetID: setID}
	case GrandpaCatchUpResponse:
		round, err := getUint64(data, off)
		if err != nil {
			return GrandpaMessage{}, err
		}
		off += 8
		setID, err := getUint64(data, off)
		if err != nil {
			return GrandpaMessage{}, err
		}
		off += 8
		base, n, err := getBlockInfo(data, off)
		if err != nil {
			return GrandpaMessage{}, err
		}
		off += n
		prevoteCount, err := getUint32(data, off)
		if err != nil {
			return GrandpaMessage{}, err
		}
		off += 4
		prevotes := make([]types.SignedVote, 0, prevoteCount)
		for i := uint32(0); i < prevoteCount; i++ {
			v, n, err := getVote(data, off)
			if err != nil {
				return GrandpaMessage{}, err
			}
			off += n
			prevotes = append(prevotes, v)
		}
		precommitCount, err := getUint32(data, off)
		if err != nil {
			return GrandpaMessage{}, err
		}
		off += 4
		precommits := make([]types.SignedVote, 0, precommitCount)
		for i := uint32(0); i < precommitCount; i++ {
			v, n, err := getVote(data, off)
			if err != nil {
				return GrandpaMessage{}, err
			}
			off += n
			precommits = append(precommits, v)
		}
		m.CatchUpResp = &grandpa.CatchUpResponse{Round: round, SetID: setID, Base: base, Prevotes: prevotes, Precommits: precommits}
	default:
		return GrandpaMessage{}, errors.Newf("network: unknown grandpa message kind %d", kind)
	}
	return m, nil
}
