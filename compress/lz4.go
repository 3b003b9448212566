package compress

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// lz4Codec implements LZ4 block compression. Effort levels below the middle
// of the scale use the fast compressor; higher levels use the HC match
// finder with increasing depth.
type lz4Codec struct{}

// lz4HCThreshold is the effort level at which the HC compressor takes over
// from the fast one.
const lz4HCThreshold = 50

var lz4HCLevels = [...]lz4.CompressionLevel{
	lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
	lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

func lz4HCLevel(level uint32) lz4.CompressionLevel {
	// Map 50..100 onto Level1..Level9.
	idx := (level - lz4HCThreshold) * uint32(len(lz4HCLevels)-1) / (MaxLevel - lz4HCThreshold)
	return lz4HCLevels[idx]
}

type lz4Compressor struct {
	fast    *lz4.Compressor
	hc      *lz4.CompressorHC
	scratch []byte
}

func (lz4Codec) newCompressor(maxBlockSize, level uint32) (blockCompressor, error) {
	c := &lz4Compressor{
		scratch: make([]byte, lz4.CompressBlockBound(int(maxBlockSize))),
	}
	if level < lz4HCThreshold {
		c.fast = &lz4.Compressor{}
	} else {
		c.hc = &lz4.CompressorHC{Level: lz4HCLevel(level)}
	}
	return c, nil
}

func (c *lz4Compressor) compress(src, dst []byte) int {
	var (
		n   int
		err error
	)
	// Compress into the full-bound scratch buffer first: the block encoders
	// need the worst-case output space even when the result is small.
	if c.fast != nil {
		n, err = c.fast.CompressBlock(src, c.scratch)
	} else {
		n, err = c.hc.CompressBlock(src, c.scratch)
	}
	if err != nil || n == 0 || n > len(dst) {
		return 0
	}
	copy(dst, c.scratch[:n])
	return n
}

func (c *lz4Compressor) close() error {
	c.scratch = nil
	return nil
}

type lz4Decompressor struct{}

func (lz4Codec) newDecompressor(maxBlockSize uint32) (blockDecompressor, error) {
	return lz4Decompressor{}, nil
}

func (lz4Decompressor) decompress(src, dst []byte) error {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return fmt.Errorf("%w: lz4: %v", ErrCorruptData, err)
	}
	if n != len(dst) {
		return fmt.Errorf("%w: lz4: got %d bytes, expected %d", ErrCorruptData, n, len(dst))
	}
	return nil
}

func (lz4Decompressor) close() error { return nil }

func (lz4Codec) compressorMemory(maxBlockSize, level uint32) uint64 {
	// Hash table for the fast path, hash plus chain tables for HC.
	var tables uint64 = 1 << 18
	if level >= lz4HCThreshold {
		tables = 1 << 19
	}
	return tables + uint64(lz4.CompressBlockBound(int(maxBlockSize)))
}
