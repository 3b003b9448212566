package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// deflateCodec implements raw DEFLATE compression. DEFLATE is streaming
// rather than block-oriented, so blocks are framed as one complete flate
// stream each.
type deflateCodec struct{}

func deflateLevel(level uint32) int {
	// Map 10..100 onto flate levels 1..9.
	return flate.BestSpeed +
		int((level-MinLevel)*uint32(flate.BestCompression-flate.BestSpeed)/(MaxLevel-MinLevel))
}

type deflateCompressor struct {
	w   *flate.Writer
	buf bytes.Buffer
}

func (deflateCodec) newCompressor(maxBlockSize, level uint32) (blockCompressor, error) {
	w, err := flate.NewWriter(io.Discard, deflateLevel(level))
	if err != nil {
		return nil, err
	}
	c := &deflateCompressor{w: w}
	c.buf.Grow(int(maxBlockSize))
	return c, nil
}

func (c *deflateCompressor) compress(src, dst []byte) int {
	c.buf.Reset()
	c.w.Reset(&c.buf)
	if _, err := c.w.Write(src); err != nil {
		return 0
	}
	if err := c.w.Close(); err != nil {
		return 0
	}
	if c.buf.Len() > len(dst) {
		return 0
	}
	return copy(dst, c.buf.Bytes())
}

func (c *deflateCompressor) close() error {
	c.buf.Reset()
	return nil
}

type deflateDecompressor struct {
	r io.ReadCloser
}

func (deflateCodec) newDecompressor(maxBlockSize uint32) (blockDecompressor, error) {
	return &deflateDecompressor{r: flate.NewReader(nil)}, nil
}

func (d *deflateDecompressor) decompress(src, dst []byte) error {
	if err := d.r.(flate.Resetter).Reset(bytes.NewReader(src), nil); err != nil {
		return fmt.Errorf("%w: deflate: %v", ErrCorruptData, err)
	}
	if _, err := io.ReadFull(d.r, dst); err != nil {
		return fmt.Errorf("%w: deflate: %v", ErrCorruptData, err)
	}
	// The stream must end exactly at the expected size.
	var tail [1]byte
	if n, _ := d.r.Read(tail[:]); n != 0 {
		return fmt.Errorf("%w: deflate: trailing data after %d bytes", ErrCorruptData, len(dst))
	}
	return nil
}

func (d *deflateDecompressor) close() error {
	return d.r.Close()
}

func (deflateCodec) compressorMemory(maxBlockSize, level uint32) uint64 {
	// Fixed hash tables plus the in-memory output buffer.
	return (1 << 16) + uint64(maxBlockSize)
}
