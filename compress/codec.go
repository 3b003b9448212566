package compress

// codec is the plug-in interface an algorithm implements to participate in
// the block compression layer. Adding an algorithm means adding a Type
// constant, an implementation of this interface, and an entry in the codecs
// table.
type codec interface {
	// newCompressor allocates working memory for compressing blocks of at
	// most maxBlockSize bytes at the given (already resolved) effort level.
	newCompressor(maxBlockSize, level uint32) (blockCompressor, error)

	// newDecompressor allocates working memory for decompressing blocks
	// whose uncompressed size is at most maxBlockSize bytes.
	newDecompressor(maxBlockSize uint32) (blockDecompressor, error)

	// compressorMemory estimates the working memory of a compressor without
	// allocating it.
	compressorMemory(maxBlockSize, level uint32) uint64
}

// blockCompressor compresses one block at a time into a caller buffer.
type blockCompressor interface {
	// compress writes the compressed form of src into dst and returns the
	// number of bytes written, or 0 when the result would not fit in dst.
	compress(src, dst []byte) int

	close() error
}

// blockDecompressor decompresses one block at a time into a caller buffer
// sized exactly to the uncompressed length.
type blockDecompressor interface {
	decompress(src, dst []byte) error
	close() error
}
