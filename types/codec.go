package types

import (
	"encoding/binary"
	"errors"
)

// MarshalBinary implements encoding.BinaryMarshaler. It reuses the same
// canonical encoding Hash() hashes and appends the trailing seal digest
// (which Hash() excludes), so round-tripping a header through
// MarshalBinary/UnmarshalBinary keeps the seal and reproduces an identical
// Hash().
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := h.encode()
	seal, ok := h.Seal()
	if !ok {
		return buf, nil
	}
	countOff := HashLength + 8 + HashLength + HashLength
	binary.BigEndian.PutUint32(buf[countOff:countOff+4], uint32(len(h.Digests)))
	buf = append(buf, byte(seal.Kind))
	buf = append(buf, seal.Engine[:]...)
	buf = appendUint32(buf, uint32(len(seal.Data)))
	buf = append(buf, seal.Data...)
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler, parsing the wire
// form produced by MarshalBinary.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HashLength+8+HashLength+HashLength+4 {
		return errors.New("types: truncated header")
	}
	var off int
	copy(h.ParentHash[:], data[off:off+HashLength])
	off += HashLength
	h.Number = BlockNumber(binary.BigEndian.Uint64(data[off : off+8]))
	off += 8
	copy(h.StateRoot[:], data[off:off+HashLength])
	off += HashLength
	copy(h.ExtrinsicsRoot[:], data[off:off+HashLength])
	off += HashLength
	count := binary.BigEndian.Uint32(data[off : off+4])
	off += 4

	digests := make([]Digest, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+1+4+4 > len(data) {
			return errors.New("types: truncated digest entry")
		}
		kind := DigestKind(data[off])
		off++
		var engine ConsensusEngineID
		copy(engine[:], data[off:off+4])
		off += 4
		dataLen := binary.BigEndian.Uint32(data[off : off+4])
		off += 4
		if off+int(dataLen) > len(data) {
			return errors.New("types: truncated digest payload")
		}
		payload := append([]byte(nil), data[off:off+int(dataLen)]...)
		off += int(dataLen)
		digests = append(digests, Digest{Kind: kind, Engine: engine, Data: payload})
	}

	h.Digests = digests
	h.hash.Store(nil)
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler for a full block: the
// header followed by its body, each extrinsic length-prefixed.
func (b *Block) MarshalBinary() ([]byte, error) {
	headerBytes, err := b.Header.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(headerBytes)+4)
	var hlen [4]byte
	binary.BigEndian.PutUint32(hlen[:], uint32(len(headerBytes)))
	buf = append(buf, hlen[:]...)
	buf = append(buf, headerBytes...)

	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(b.Body)))
	buf = append(buf, count[:]...)
	for _, e := range b.Body {
		var elen [4]byte
		binary.BigEndian.PutUint32(elen[:], uint32(len(e)))
		buf = append(buf, elen[:]...)
		buf = append(buf, e...)
	}
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Block.
func (b *Block) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return errors.New("types: truncated block")
	}
	hlen := binary.BigEndian.Uint32(data[0:4])
	off := 4
	if off+int(hlen) > len(data) {
		return errors.New("types: truncated block header")
	}
	header := &Header{}
	if err := header.UnmarshalBinary(data[off : off+int(hlen)]); err != nil {
		return err
	}
	off += int(hlen)

	if off+4 > len(data) {
		return errors.New("types: truncated block body count")
	}
	count := binary.BigEndian.Uint32(data[off : off+4])
	off += 4

	body := make([]Extrinsic, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(data) {
			return errors.New("types: truncated extrinsic length")
		}
		elen := binary.BigEndian.Uint32(data[off : off+4])
		off += 4
		if off+int(elen) > len(data) {
			return errors.New("types: truncated extrinsic payload")
		}
		body = append(body, Extrinsic(append([]byte(nil), data[off:off+int(elen)]...)))
		off += int(elen)
	}

	b.Header = header
	b.Body = body
	return nil
}
