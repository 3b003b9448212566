package unpack

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/meigma/unpack/compress"
)

// StreamConsumer is the consumer side of the stream extraction protocol.
//
// For each stream the driver calls BeginStream once, ConsumeChunk zero or
// more times with successive decompressed slices in stream order, and
// EndStream once. A consumer that fails BeginStream must release any partial
// state it acquired within that call; the driver will not call ConsumeChunk
// or EndStream for that stream. EndStream receives the read status and must
// release all resources opened in BeginStream whether or not the read
// succeeded.
type StreamConsumer interface {
	BeginStream(s *Stream) error
	ConsumeChunk(p []byte) error
	EndStream(s *Stream, readErr error) error
}

// StreamReader produces the decompressed bytes of one stream, invoking
// consume with successive chunks in stream order.
type StreamReader interface {
	ReadStream(ctx context.Context, s *Stream, consume func(p []byte) error) error
}

// ReadStreamList drives the extraction protocol over a list of streams. Any
// callback error stops the run immediately and propagates to the caller;
// streams already finalized stay on disk.
func ReadStreamList(ctx context.Context, streams []*Stream, r StreamReader, c StreamConsumer) error {
	for _, s := range streams {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.BeginStream(s); err != nil {
			return err
		}

		readErr := r.ReadStream(ctx, s, c.ConsumeChunk)

		if err := c.EndStream(s, readErr); err != nil {
			return err
		}
		if readErr != nil {
			return readErr
		}
	}
	return nil
}

// fileReadBufSize is the buffer size for standalone-file streams.
const fileReadBufSize = 64 << 10

// ResourceReader is the built-in StreamReader covering the three stream
// storage locations. Archive-resident chunks are decompressed through the
// compress package; decompressor handles are reused across streams of the
// same compression type and chunk size.
type ResourceReader struct {
	dec       *compress.Decompressor
	decType   compress.Type
	decChunk  uint32
	chunkBuf  []byte
	storedBuf []byte
}

// NewResourceReader creates a reader for stream resources.
func NewResourceReader() *ResourceReader {
	return &ResourceReader{}
}

// ReadStream implements StreamReader.
func (r *ResourceReader) ReadStream(ctx context.Context, s *Stream, consume func(p []byte) error) error {
	switch s.Location {
	case LocationMemory:
		if int64(len(s.Data)) < s.Size {
			return ErrShortStream
		}
		return consume(s.Data[:s.Size])

	case LocationFile:
		return r.readFileStream(ctx, s, consume)

	case LocationArchive:
		return r.readArchiveStream(ctx, s, consume)

	default:
		return ErrNoStreamData
	}
}

// Close releases the cached decompressor handle.
func (r *ResourceReader) Close() error {
	err := r.dec.Close()
	r.dec = nil
	return err
}

func (r *ResourceReader) readFileStream(ctx context.Context, s *Stream, consume func(p []byte) error) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	if r.chunkBuf == nil || len(r.chunkBuf) < fileReadBufSize {
		r.chunkBuf = make([]byte, fileReadBufSize)
	}

	remaining := s.Size
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := int64(len(r.chunkBuf))
		if n > remaining {
			n = remaining
		}
		read, err := f.Read(r.chunkBuf[:n])
		if read > 0 {
			if cerr := consume(r.chunkBuf[:read]); cerr != nil {
				return cerr
			}
			remaining -= int64(read)
		}
		if err != nil {
			if remaining > 0 {
				return fmt.Errorf("%w: %q: %v", ErrShortStream, s.Path, err)
			}
			break
		}
	}
	return nil
}

func (r *ResourceReader) readArchiveStream(ctx context.Context, s *Stream, consume func(p []byte) error) error {
	if s.Source == nil {
		return ErrNoStreamData
	}
	if s.ChunkSize == 0 {
		return fmt.Errorf("unpack: archive stream has zero chunk size")
	}

	if uint32(len(r.chunkBuf)) < s.ChunkSize {
		r.chunkBuf = make([]byte, s.ChunkSize)
	}
	if uint32(len(r.storedBuf)) < s.ChunkSize {
		r.storedBuf = make([]byte, s.ChunkSize)
	}

	remaining := s.Size
	for _, ref := range s.Chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if remaining <= 0 {
			return fmt.Errorf("unpack: stream has more chunks than its size covers")
		}

		usize := int64(s.ChunkSize)
		if usize > remaining {
			usize = remaining
		}
		if ref.Size > s.ChunkSize {
			return fmt.Errorf("%w: stored chunk of %d bytes exceeds chunk size %d", compress.ErrCorruptData, ref.Size, s.ChunkSize)
		}

		stored := r.storedBuf[:ref.Size]
		if _, err := io.ReadFull(io.NewSectionReader(s.Source, ref.Offset, int64(ref.Size)), stored); err != nil {
			return fmt.Errorf("unpack: read chunk at offset %d: %w", ref.Offset, err)
		}

		var out []byte
		if s.Compression == compress.None || int64(ref.Size) == usize {
			// Stored raw: either the stream is uncompressed or this chunk
			// did not shrink.
			if int64(ref.Size) != usize {
				return fmt.Errorf("%w: raw chunk of %d bytes, expected %d", compress.ErrCorruptData, ref.Size, usize)
			}
			out = stored
		} else {
			if err := r.decompressor(s.Compression, s.ChunkSize); err != nil {
				return err
			}
			out = r.chunkBuf[:usize]
			if err := r.dec.Decompress(stored, out); err != nil {
				return err
			}
		}

		if err := consume(out); err != nil {
			return err
		}
		remaining -= usize
	}
	if remaining != 0 {
		return ErrShortStream
	}
	return nil
}

// decompressor ensures the cached handle matches the stream's compression
// type and chunk size.
func (r *ResourceReader) decompressor(t compress.Type, chunkSize uint32) error {
	if r.dec != nil && r.decType == t && r.decChunk == chunkSize {
		return nil
	}
	if r.dec != nil {
		r.dec.Close()
		r.dec = nil
	}
	dec, err := compress.NewDecompressor(t, chunkSize)
	if err != nil {
		return err
	}
	r.dec = dec
	r.decType = t
	r.decChunk = chunkSize
	return nil
}
