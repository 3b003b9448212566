// Package compress provides the block compression layer for unpack archives.
//
// Content is compressed in independent blocks of a fixed maximum size. Each
// supported algorithm is exposed through a [Compressor]/[Decompressor] handle
// pair bound to one algorithm, one maximum block size, and one effort level.
// Handles are stateless across blocks apart from reusable working memory, so
// a single handle can process any number of blocks sequentially.
//
// The chunked engines in this package ([NewSerialChunkCompressor],
// [NewParallelChunkCompressor]) build on the handles to convert raw data
// streams into archive-resident compressed blocks, falling back to raw
// storage for incompressible data.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

// Sentinel errors.
var (
	// ErrInvalidType is returned when a compression type is not registered.
	ErrInvalidType = errors.New("compress: invalid compression type")

	// ErrInvalidParam is returned for invalid configuration such as a zero
	// maximum block size.
	ErrInvalidParam = errors.New("compress: invalid parameter")

	// ErrCorruptData is returned when compressed data cannot be decompressed
	// to the expected size.
	ErrCorruptData = errors.New("compress: corrupt compressed data")
)

// Type identifies a compression algorithm. The values are stored in archive
// chunk headers and must not be reordered.
type Type uint8

const (
	// None indicates uncompressed data.
	None Type = iota

	// LZ4 indicates LZ4 block compression. Fast default for binary data.
	LZ4

	// Zstd indicates zstd compression. Better ratios for text-like content.
	Zstd

	// Deflate indicates raw DEFLATE compression. Kept for interoperability
	// with older archives.
	Deflate
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	case Deflate:
		return "deflate"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseType parses a compression type from its string representation.
func ParseType(name string) (Type, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	case "deflate":
		return Deflate, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidType, name)
	}
}

// Effort levels. The scale is algorithm-independent: 10 is fastest, 100 is
// maximum effort. Each codec maps the scale onto its native levels.
const (
	MinLevel     = 10
	DefaultLevel = 50
	MaxLevel     = 100
)

// codecs maps a Type to its implementation. None has no codec entry: callers
// store data verbatim for uncompressed content.
var codecs = map[Type]codec{
	LZ4:     lz4Codec{},
	Zstd:    zstdCodec{},
	Deflate: deflateCodec{},
}

func typeValid(t Type) bool {
	_, ok := codecs[t]
	return ok
}

// Process-wide default effort levels, adjustable per type. A zero entry means
// "use DefaultLevel".
var (
	defaultLevelMu sync.RWMutex
	defaultLevels  = map[Type]uint32{}
)

// SetDefaultLevel sets the process-wide default effort level used when a
// handle is created with level 0. Setting level 0 restores DefaultLevel.
func SetDefaultLevel(t Type, level uint32) error {
	if !typeValid(t) {
		return ErrInvalidType
	}
	defaultLevelMu.Lock()
	defaultLevels[t] = level
	defaultLevelMu.Unlock()
	return nil
}

// resolveLevel maps level 0 to the per-type default, then to DefaultLevel,
// and clamps the result to the supported scale.
func resolveLevel(t Type, level uint32) uint32 {
	if level == 0 {
		defaultLevelMu.RLock()
		level = defaultLevels[t]
		defaultLevelMu.RUnlock()
	}
	if level == 0 {
		level = DefaultLevel
	}
	return min(max(level, MinLevel), MaxLevel)
}

// handleOverhead approximates the fixed per-handle allocation, used by the
// memory estimators.
const handleOverhead = 64

// NeededMemory estimates the memory required by a compressor handle for the
// given type, maximum block size, and effort level. It returns 0 for an
// unregistered type and never allocates codec state.
func NeededMemory(t Type, maxBlockSize uint32, level uint32) uint64 {
	c, ok := codecs[t]
	if !ok {
		return 0
	}
	return handleOverhead + c.compressorMemory(maxBlockSize, resolveLevel(t, level))
}

// Compressor compresses independent blocks of data with one algorithm.
//
// A Compressor is not safe for concurrent use; the parallel chunk engine
// gives each worker its own handle.
type Compressor struct {
	ctype        Type
	maxBlockSize uint32
	bc           blockCompressor

	selfCheck bool
	verifier  *Decompressor
	verifyBuf []byte
}

// CompressorOption configures a Compressor.
type CompressorOption func(*Compressor)

// WithSelfCheck enables round-trip verification: after every successful
// compression the result is decompressed and compared against the input.
// A mismatch indicates codec corruption that would silently corrupt archives,
// so it panics rather than returning an error.
func WithSelfCheck() CompressorOption {
	return func(c *Compressor) {
		c.selfCheck = true
	}
}

// NewCompressor creates a compressor handle for blocks of at most
// maxBlockSize bytes. A level of 0 selects the process-wide default for the
// type (see [SetDefaultLevel]).
func NewCompressor(t Type, maxBlockSize uint32, level uint32, opts ...CompressorOption) (*Compressor, error) {
	if maxBlockSize == 0 {
		return nil, ErrInvalidParam
	}
	impl, ok := codecs[t]
	if !ok {
		return nil, ErrInvalidType
	}

	bc, err := impl.newCompressor(maxBlockSize, resolveLevel(t, level))
	if err != nil {
		return nil, fmt.Errorf("compress: create %s compressor: %w", t, err)
	}

	c := &Compressor{
		ctype:        t,
		maxBlockSize: maxBlockSize,
		bc:           bc,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.selfCheck {
		c.verifier, err = NewDecompressor(t, maxBlockSize)
		if err != nil {
			bc.close()
			return nil, err
		}
		c.verifyBuf = make([]byte, maxBlockSize)
	}
	return c, nil
}

// Type returns the compression algorithm of this handle.
func (c *Compressor) Type() Type { return c.ctype }

// MaxBlockSize returns the maximum uncompressed block size for this handle.
func (c *Compressor) MaxBlockSize() uint32 { return c.maxBlockSize }

// Compress compresses src into dst and returns the number of bytes written.
// A return of 0 is not an error: it means the data did not compress to fewer
// than len(dst) bytes and the caller should store it raw.
//
// len(src) must not exceed MaxBlockSize.
func (c *Compressor) Compress(src, dst []byte) int {
	if len(src) > int(c.maxBlockSize) {
		panic(fmt.Sprintf("compress: block of %d bytes exceeds maximum %d", len(src), c.maxBlockSize))
	}
	if len(src) == 0 {
		return 0
	}

	n := c.bc.compress(src, dst)

	if n > 0 && c.selfCheck {
		c.verify(src, dst[:n])
	}
	return n
}

// verify decompresses the freshly compressed block and compares it against
// the original. A failure means the codec cannot be trusted for the rest of
// the process, so it panics.
func (c *Compressor) verify(src, compressed []byte) {
	buf := c.verifyBuf[:len(src)]
	if err := c.verifier.Decompress(compressed, buf); err != nil {
		panic(fmt.Sprintf("compress: failed to decompress our %s-compressed data: %v", c.ctype, err))
	}
	if !bytes.Equal(src, buf) {
		panic(fmt.Sprintf("compress: our %s-compressed data did not decompress to the original", c.ctype))
	}
}

// Close releases codec working memory. It is idempotent and safe on a nil
// receiver.
func (c *Compressor) Close() error {
	if c == nil || c.bc == nil {
		return nil
	}
	err := c.bc.close()
	c.bc = nil
	if c.verifier != nil {
		c.verifier.Close()
		c.verifier = nil
	}
	return err
}

// Decompressor decompresses independent blocks of data with one algorithm.
//
// A Decompressor is not safe for concurrent use.
type Decompressor struct {
	ctype        Type
	maxBlockSize uint32
	bd           blockDecompressor
}

// NewDecompressor creates a decompressor handle for blocks whose uncompressed
// size is at most maxBlockSize bytes.
func NewDecompressor(t Type, maxBlockSize uint32) (*Decompressor, error) {
	if maxBlockSize == 0 {
		return nil, ErrInvalidParam
	}
	impl, ok := codecs[t]
	if !ok {
		return nil, ErrInvalidType
	}
	bd, err := impl.newDecompressor(maxBlockSize)
	if err != nil {
		return nil, fmt.Errorf("compress: create %s decompressor: %w", t, err)
	}
	return &Decompressor{ctype: t, maxBlockSize: maxBlockSize, bd: bd}, nil
}

// Type returns the compression algorithm of this handle.
func (d *Decompressor) Type() Type { return d.ctype }

// Decompress decompresses src into dst. dst must be exactly the uncompressed
// size of the block; a size mismatch is reported as ErrCorruptData.
func (d *Decompressor) Decompress(src, dst []byte) error {
	if len(dst) > int(d.maxBlockSize) {
		panic(fmt.Sprintf("compress: block of %d bytes exceeds maximum %d", len(dst), d.maxBlockSize))
	}
	return d.bd.decompress(src, dst)
}

// Close releases codec working memory. It is idempotent and safe on a nil
// receiver.
func (d *Decompressor) Close() error {
	if d == nil || d.bd == nil {
		return nil
	}
	err := d.bd.close()
	d.bd = nil
	return err
}
