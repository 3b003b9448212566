package compress

import "fmt"

// Chunk is one unit of output from a ChunkCompressor: the stored bytes plus
// the original length. When compression did not help, the chunk is stored
// raw and CompressedSize equals OriginalSize.
type Chunk struct {
	// Data is the bytes to store in the archive. It aliases an internal
	// engine buffer and is valid only until the buffer's slot is reused;
	// see ChunkCompressor.
	Data []byte

	// CompressedSize is the stored length of the chunk.
	CompressedSize uint32

	// OriginalSize is the uncompressed length of the chunk.
	OriginalSize uint32
}

// StoredRaw reports whether the chunk is stored uncompressed.
func (c Chunk) StoredRaw() bool { return c.CompressedSize == c.OriginalSize }

// ChunkCompressor converts a sequence of raw chunks into a sequence of
// compressed-or-raw chunks, preserving submission order.
//
// The submit/drain split exists so an implementation can overlap compression
// with the caller's I/O: a parallel engine may buffer several chunks and
// compress them concurrently, but NextChunk always drains results in the
// order the chunks were submitted.
type ChunkCompressor interface {
	// ChunkSize returns the maximum size of a submitted chunk.
	ChunkSize() uint32

	// NumWorkers returns the number of chunks the engine can usefully hold
	// in flight at once.
	NumWorkers() int

	// SubmitChunk buffers a copy of p for compression. It returns false when
	// the engine is full (the caller must drain via NextChunk first) or when
	// p is empty. len(p) must not exceed ChunkSize.
	SubmitChunk(p []byte) bool

	// NextChunk drains the next completed chunk in submission order. It
	// returns ok=false when nothing is buffered. The returned Chunk's Data
	// is valid until the engine buffers another chunk into the same slot.
	NextChunk() (Chunk, bool)

	// Close releases the engine's compressor handles and buffers.
	Close() error
}

// serialChunkCompressor holds at most one chunk in flight and compresses it
// on drain. It is the reference implementation of the ChunkCompressor
// ordering contract.
type serialChunkCompressor struct {
	compressor *Compressor
	chunkSize  uint32
	udata      []byte
	cdata      []byte
	ulen       uint32
}

// NewSerialChunkCompressor creates a single-worker chunk engine for the given
// compression type and chunk size.
func NewSerialChunkCompressor(t Type, chunkSize uint32, opts ...CompressorOption) (ChunkCompressor, error) {
	if chunkSize == 0 {
		return nil, ErrInvalidParam
	}
	compressor, err := NewCompressor(t, chunkSize, 0, opts...)
	if err != nil {
		return nil, err
	}
	return &serialChunkCompressor{
		compressor: compressor,
		chunkSize:  chunkSize,
		udata:      make([]byte, chunkSize),
		// Compression is only worthwhile below the original size, so the
		// output budget is one byte less than the largest chunk.
		cdata: make([]byte, chunkSize-1),
	}, nil
}

func (s *serialChunkCompressor) ChunkSize() uint32 { return s.chunkSize }

func (s *serialChunkCompressor) NumWorkers() int { return 1 }

func (s *serialChunkCompressor) SubmitChunk(p []byte) bool {
	if s.ulen != 0 || len(p) == 0 {
		return false
	}
	if len(p) > int(s.chunkSize) {
		panic(fmt.Sprintf("compress: chunk of %d bytes exceeds chunk size %d", len(p), s.chunkSize))
	}
	copy(s.udata, p)
	s.ulen = uint32(len(p))
	return true
}

func (s *serialChunkCompressor) NextChunk() (Chunk, bool) {
	if s.ulen == 0 {
		return Chunk{}, false
	}
	ulen := s.ulen
	s.ulen = 0

	clen := s.compressor.Compress(s.udata[:ulen], s.cdata[:ulen-1])
	if clen == 0 {
		// Incompressible within the budget: store raw.
		return Chunk{Data: s.udata[:ulen], CompressedSize: ulen, OriginalSize: ulen}, true
	}
	return Chunk{Data: s.cdata[:clen], CompressedSize: uint32(clen), OriginalSize: ulen}, true
}

func (s *serialChunkCompressor) Close() error {
	err := s.compressor.Close()
	s.udata = nil
	s.cdata = nil
	return err
}
