package sync

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/types"
)

// Protocol is the libp2p-style protocol ID the network host multiplexes
// gap-fill streams under.
const Protocol = "/vanguard/sync/1"

// HostFetcher implements PeerSource over a ports.NetworkHost stream: one
// request/response round trip per call, framed as length-prefixed
// messages so a stream can in principle be reused across calls.
type HostFetcher struct {
	host ports.NetworkHost
}

// NewHostFetcher wraps host for gap-fill range requests.
func NewHostFetcher(host ports.NetworkHost) *HostFetcher {
	return &HostFetcher{host: host}
}

// RequestRange opens a stream to peer, sends the (from, to] range request,
// and decodes the ordered BlockData response.
func (f *HostFetcher) RequestRange(ctx context.Context, peer ports.PeerID, from, to types.Hash) ([]BlockData, error) {
	stream, err := f.host.OpenStream(ctx, peer, Protocol)
	if err != nil {
		return nil, errors.Wrap(types.ErrPeerTimeout, err.Error())
	}
	defer stream.Close()

	if err := writeFrame(stream, encodeRangeRequest(from, to)); err != nil {
		return nil, errors.Wrap(types.ErrWriteFailed, err.Error())
	}

	respFrame, err := readFrame(stream)
	if err != nil {
		return nil, errors.Wrap(types.ErrStreamReset, err.Error())
	}
	return decodeBlocksResponse(respFrame)
}

func encodeRangeRequest(from, to types.Hash) []byte {
	buf := make([]byte, 0, types.HashLength*2)
	buf = append(buf, from[:]...)
	buf = append(buf, to[:]...)
	return buf
}

func decodeRangeRequest(data []byte) (from, to types.Hash, err error) {
	if len(data) != types.HashLength*2 {
		return types.Hash{}, types.Hash{}, errors.New("sync: malformed range request")
	}
	copy(from[:], data[:types.HashLength])
	copy(to[:], data[types.HashLength:])
	return from, to, nil
}

func encodeBlocksResponse(page []BlockData) ([]byte, error) {
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(page)))
	buf := append([]byte{}, count[:]...)
	for _, data := range page {
		blockBytes, err := data.block().MarshalBinary()
		if err != nil {
			return nil, err
		}
		var blen [4]byte
		binary.BigEndian.PutUint32(blen[:], uint32(len(blockBytes)))
		buf = append(buf, blen[:]...)
		buf = append(buf, blockBytes...)
	}
	return buf, nil
}

func decodeBlocksResponse(data []byte) ([]BlockData, error) {
	if len(data) < 4 {
		return nil, errors.New("sync: malformed blocks response")
	}
	count := binary.BigEndian.Uint32(data[0:4])
	off := 4
	page := make([]BlockData, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(data) {
			return nil, errors.New("sync: truncated block length")
		}
		blen := binary.BigEndian.Uint32(data[off : off+4])
		off += 4
		if off+int(blen) > len(data) {
			return nil, errors.New("sync: truncated block payload")
		}
		block := &types.Block{}
		if err := block.UnmarshalBinary(data[off : off+int(blen)]); err != nil {
			return nil, err
		}
		off += int(blen)
		page = append(page, BlockData{Header: block.Header, Body: block.Body})
	}
	return page, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
