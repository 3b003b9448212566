package compress

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstdCodec implements zstd block compression on top of the stateless
// EncodeAll/DecodeAll API. Encoder concurrency is pinned to 1: handle-level
// parallelism belongs to the chunk engine, not the codec.
type zstdCodec struct{}

func zstdEncoderLevel(level uint32) zstd.EncoderLevel {
	switch {
	case level < 35:
		return zstd.SpeedFastest
	case level < 65:
		return zstd.SpeedDefault
	case level < 90:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// zstdWindowSize clamps the encoder window to a power of two covering
// maxBlockSize within the library's supported range.
func zstdWindowSize(maxBlockSize uint32) int {
	window := zstd.MinWindowSize
	for window < int(maxBlockSize) && window < zstd.MaxWindowSize {
		window <<= 1
	}
	return window
}

type zstdCompressor struct {
	enc     *zstd.Encoder
	scratch []byte
}

func (zstdCodec) newCompressor(maxBlockSize, level uint32) (blockCompressor, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstdEncoderLevel(level)),
		zstd.WithEncoderConcurrency(1),
		zstd.WithWindowSize(zstdWindowSize(maxBlockSize)),
	)
	if err != nil {
		return nil, err
	}
	return &zstdCompressor{
		enc:     enc,
		scratch: make([]byte, 0, maxBlockSize),
	}, nil
}

func (c *zstdCompressor) compress(src, dst []byte) int {
	out := c.enc.EncodeAll(src, c.scratch[:0])
	if len(out) > len(dst) {
		return 0
	}
	copy(dst, out)
	return len(out)
}

func (c *zstdCompressor) close() error {
	err := c.enc.Close()
	c.scratch = nil
	return err
}

type zstdDecompressor struct {
	dec *zstd.Decoder
}

func (zstdCodec) newDecompressor(maxBlockSize uint32) (blockDecompressor, error) {
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(zstdWindowSize(maxBlockSize))*2),
	)
	if err != nil {
		return nil, err
	}
	return &zstdDecompressor{dec: dec}, nil
}

func (d *zstdDecompressor) decompress(src, dst []byte) error {
	out, err := d.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return fmt.Errorf("%w: zstd: %v", ErrCorruptData, err)
	}
	if len(out) != len(dst) {
		return fmt.Errorf("%w: zstd: got %d bytes, expected %d", ErrCorruptData, len(out), len(dst))
	}
	return nil
}

func (d *zstdDecompressor) close() error {
	d.dec.Close()
	return nil
}

func (zstdCodec) compressorMemory(maxBlockSize, level uint32) uint64 {
	// The encoder keeps roughly one window of history plus match-finder
	// tables that grow with effort, plus our scratch output buffer.
	window := uint64(zstdWindowSize(maxBlockSize))
	tables := uint64(1) << 20
	if level >= 65 {
		tables <<= 2
	}
	return window*2 + tables + uint64(maxBlockSize)
}
