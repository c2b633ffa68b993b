package rssblock

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names a block compression family.
type Codec string

const (
	CodecLZ4  Codec = "lz4"
	CodecZstd Codec = "zstd"
)

// Zstd level range accepted by the framer. LZ4 uses its fast block format
// and ignores the level knob.
const (
	MinZstdLevel = 1
	MaxZstdLevel = 22
)

// ErrCompression marks every codec failure, framing and unframing alike.
var ErrCompression = errors.New("block compression failed")

// Framer turns spill payloads into wire blocks and back. Codec and level
// are fixed at construction. Framing is deterministic in (payload, codec,
// level); a framer belongs to a single writer goroutine.
type Framer struct {
	codec Codec
	level int

	lz4c *lz4.Compressor
	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

func NewFramer(codec Codec, level int) (*Framer, error) {
	f := &Framer{codec: codec, level: level}
	switch codec {
	case CodecLZ4:
		f.lz4c = &lz4.Compressor{}
	case CodecZstd:
		if level < MinZstdLevel || level > MaxZstdLevel {
			return nil, fmt.Errorf("zstd level %d outside [%d,%d]", level, MinZstdLevel, MaxZstdLevel)
		}
		var err error
		f.zenc, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
			zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("init zstd encoder: %w", err)
		}
		f.zdec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("init zstd decoder: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown compression codec %q", codec)
	}
	return f, nil
}

func (f *Framer) Codec() Codec {
	return f.codec
}

// Frame compresses payload and wraps it in a block.
func (f *Framer) Frame(payload []byte) (*Block, error) {
	if len(payload) == 0 {
		return &Block{Data: []byte{}}, nil
	}
	var compressed []byte
	switch f.codec {
	case CodecLZ4:
		// a bound-sized destination cannot fail, incompressible input
		// merely expands
		dst := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := f.lz4c.CompressBlock(payload, dst)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCompression, err)
		}
		compressed = dst[:n]
	case CodecZstd:
		compressed = f.zenc.EncodeAll(payload, make([]byte, 0, len(payload)))
	}
	return &Block{
		CompressedLength:   int32(len(compressed)),
		UncompressedLength: int32(len(payload)),
		Data:               compressed,
	}, nil
}

// Unframe decompresses a block back into its original payload.
func (f *Framer) Unframe(b *Block) ([]byte, error) {
	if int(b.CompressedLength) != len(b.Data) {
		return nil, fmt.Errorf("%w: header claims %d payload bytes, got %d", ErrCompression, b.CompressedLength, len(b.Data))
	}
	if b.UncompressedLength == 0 {
		return []byte{}, nil
	}
	switch f.codec {
	case CodecLZ4:
		dst := make([]byte, b.UncompressedLength)
		n, err := lz4.UncompressBlock(b.Data, dst)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCompression, err)
		}
		if int32(n) != b.UncompressedLength {
			return nil, fmt.Errorf("%w: expected %d uncompressed bytes, got %d", ErrCompression, b.UncompressedLength, n)
		}
		return dst, nil
	case CodecZstd:
		out, err := f.zdec.DecodeAll(b.Data, make([]byte, 0, b.UncompressedLength))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCompression, err)
		}
		if int32(len(out)) != b.UncompressedLength {
			return nil, fmt.Errorf("%w: expected %d uncompressed bytes, got %d", ErrCompression, b.UncompressedLength, len(out))
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown codec %q", ErrCompression, f.codec)
}
