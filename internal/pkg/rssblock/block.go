package rssblock

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the fixed length of a block header on the wire: a
// big-endian int32 compressed byte count followed by a big-endian int32
// uncompressed byte count.
const HeaderSize = 8

// Block is one framed unit of shuffle data. Data holds the compressed
// payload; CompressedLength always equals len(Data).
type Block struct {
	CompressedLength   int32
	UncompressedLength int32
	Data               []byte
}

// WireSize is the number of bytes the block occupies on the wire.
func (b *Block) WireSize() int {
	return HeaderSize + len(b.Data)
}

// Marshal lays the block out as header plus payload.
func (b *Block) Marshal() []byte {
	buf := make([]byte, HeaderSize+len(b.Data))
	binary.BigEndian.PutUint32(buf[0:4], uint32(b.CompressedLength))
	binary.BigEndian.PutUint32(buf[4:8], uint32(b.UncompressedLength))
	copy(buf[HeaderSize:], b.Data)
	return buf
}

// Unmarshal parses a block from raw wire bytes. The payload aliases raw.
func Unmarshal(raw []byte) (*Block, error) {
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("block of %d bytes is shorter than its header", len(raw))
	}
	b := &Block{
		CompressedLength:   int32(binary.BigEndian.Uint32(raw[0:4])),
		UncompressedLength: int32(binary.BigEndian.Uint32(raw[4:8])),
	}
	if int(b.CompressedLength) != len(raw)-HeaderSize {
		return nil, fmt.Errorf("block header claims %d payload bytes, got %d", b.CompressedLength, len(raw)-HeaderSize)
	}
	b.Data = raw[HeaderSize:]
	return b, nil
}

// Read consumes exactly one block from a stream of marshalled blocks.
func Read(r io.Reader) (*Block, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	b := &Block{
		CompressedLength:   int32(binary.BigEndian.Uint32(header[0:4])),
		UncompressedLength: int32(binary.BigEndian.Uint32(header[4:8])),
	}
	if b.CompressedLength < 0 {
		return nil, fmt.Errorf("block header claims negative payload length %d", b.CompressedLength)
	}
	b.Data = make([]byte, b.CompressedLength)
	if _, err := io.ReadFull(r, b.Data); err != nil {
		return nil, err
	}
	return b, nil
}
