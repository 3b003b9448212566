package unpack

import (
	"io"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/unpack/compress"
)

// ByteSource provides random access to archive-resident data.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// StreamLocation identifies where a stream's bytes are stored.
type StreamLocation uint8

const (
	// LocationArchive places the stream inside an archive as a run of
	// compressed-or-raw chunks read through a ByteSource.
	LocationArchive StreamLocation = iota

	// LocationFile places the stream in a standalone file on disk.
	LocationFile

	// LocationMemory places the stream in an in-memory buffer.
	LocationMemory
)

// ChunkRef locates one stored chunk of an archive-resident stream. A chunk
// whose stored size equals its uncompressed size is stored raw.
type ChunkRef struct {
	// Offset is the chunk's byte offset within the ByteSource.
	Offset int64

	// Size is the stored (possibly compressed) size of the chunk.
	Size uint32
}

// Stream is one content-addressed blob of file content. A stream is shared:
// deduplicated files reference the same stream, and during one extraction
// pass every owner receives an identical copy of its bytes from a single
// decompression pass.
type Stream struct {
	// Digest is the content address of the uncompressed bytes. Informational
	// to this package; integrity verification happens in the archive reader.
	Digest digest.Digest

	// Size is the uncompressed length in bytes.
	Size int64

	// Location selects which storage fields below are meaningful.
	Location StreamLocation

	// Source, Chunks, ChunkSize, and Compression describe an
	// archive-resident stream (LocationArchive). Chunks are listed in
	// stream order; every chunk decompresses to ChunkSize bytes except the
	// last, which holds the remainder.
	Source      ByteSource
	Chunks      []ChunkRef
	ChunkSize   uint32
	Compression compress.Type

	// Path is the standalone file holding the stream (LocationFile).
	Path string

	// Data is the in-memory content (LocationMemory).
	Data []byte

	// owners is the per-extraction list of inodes that consume this stream,
	// rebuilt by Tree.ExtractionStreams.
	owners []InodeID
}

// MemoryStream returns a stream resident in memory.
func MemoryStream(data []byte) Stream {
	return Stream{
		Digest:   digest.FromBytes(data),
		Size:     int64(len(data)),
		Location: LocationMemory,
		Data:     data,
	}
}

// FileStream returns a stream backed by a standalone file of the given size.
func FileStream(path string, size int64) Stream {
	return Stream{
		Size:     size,
		Location: LocationFile,
		Path:     path,
	}
}

// Owners returns the inodes that consume this stream during the current
// extraction, one entry per logical owner. Valid after
// Tree.ExtractionStreams.
func (s *Stream) Owners() []InodeID { return s.owners }
