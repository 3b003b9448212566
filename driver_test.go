package unpack

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/unpack/compress"
)

// event records one protocol callback seen by recordingConsumer.
type event struct {
	kind   string
	stream *Stream
	data   []byte
	err    error
}

type recordingConsumer struct {
	events   []event
	beginErr error
	chunkErr error
	endErr   error
}

func (r *recordingConsumer) BeginStream(s *Stream) error {
	r.events = append(r.events, event{kind: "begin", stream: s})
	return r.beginErr
}

func (r *recordingConsumer) ConsumeChunk(p []byte) error {
	r.events = append(r.events, event{kind: "chunk", data: append([]byte(nil), p...)})
	return r.chunkErr
}

func (r *recordingConsumer) EndStream(s *Stream, readErr error) error {
	r.events = append(r.events, event{kind: "end", stream: s, err: readErr})
	return r.endErr
}

func (r *recordingConsumer) content() []byte {
	var buf bytes.Buffer
	for _, e := range r.events {
		if e.kind == "chunk" {
			buf.Write(e.data)
		}
	}
	return buf.Bytes()
}

func TestReadStreamListSequence(t *testing.T) {
	t.Parallel()

	s1 := MemoryStream([]byte("first"))
	s2 := MemoryStream([]byte("second"))

	c := &recordingConsumer{}
	err := ReadStreamList(context.Background(), []*Stream{&s1, &s2}, NewResourceReader(), c)
	require.NoError(t, err)

	require.Len(t, c.events, 6)
	assert.Equal(t, "begin", c.events[0].kind)
	assert.Same(t, &s1, c.events[0].stream)
	assert.Equal(t, "chunk", c.events[1].kind)
	assert.Equal(t, "end", c.events[2].kind)
	assert.NoError(t, c.events[2].err)
	assert.Same(t, &s2, c.events[3].stream)
	assert.Equal(t, []byte("firstsecond"), c.content())
}

func TestReadStreamListBeginErrorSkipsStream(t *testing.T) {
	t.Parallel()

	s := MemoryStream([]byte("data"))
	wantErr := errors.New("begin failed")

	c := &recordingConsumer{beginErr: wantErr}
	err := ReadStreamList(context.Background(), []*Stream{&s}, NewResourceReader(), c)
	require.ErrorIs(t, err, wantErr)

	// No consume or end after a failed begin.
	require.Len(t, c.events, 1)
	assert.Equal(t, "begin", c.events[0].kind)
}

func TestReadStreamListReadErrorReachesEnd(t *testing.T) {
	t.Parallel()

	s := MemoryStream([]byte("data"))
	s.Size = 100 // larger than the backing buffer

	c := &recordingConsumer{}
	err := ReadStreamList(context.Background(), []*Stream{&s}, NewResourceReader(), c)
	require.ErrorIs(t, err, ErrShortStream)

	require.Len(t, c.events, 2)
	assert.Equal(t, "end", c.events[1].kind)
	assert.ErrorIs(t, c.events[1].err, ErrShortStream)
}

func TestReadStreamListContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := MemoryStream([]byte("data"))
	c := &recordingConsumer{}
	err := ReadStreamList(ctx, []*Stream{&s}, NewResourceReader(), c)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, c.events)
}

func TestResourceReaderFileStream(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "payload")
	content := bytes.Repeat([]byte("0123456789abcdef"), 8192) // crosses the read buffer size
	require.NoError(t, os.WriteFile(path, content, 0o644))

	s := FileStream(path, int64(len(content)))
	c := &recordingConsumer{}
	err := ReadStreamList(context.Background(), []*Stream{&s}, NewResourceReader(), c)
	require.NoError(t, err)
	assert.Equal(t, content, c.content())
}

func TestResourceReaderFileStreamShort(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	s := FileStream(path, 10)
	c := &recordingConsumer{}
	err := ReadStreamList(context.Background(), []*Stream{&s}, NewResourceReader(), c)
	require.ErrorIs(t, err, ErrShortStream)
}

// incompressible returns pseudo-random bytes no codec can shrink.
func incompressible(n int) []byte {
	out := make([]byte, n)
	state := uint64(0x9e3779b97f4a7c15)
	for i := range out {
		state = state*6364136223846793005 + 1442695040888963407
		out[i] = byte(state >> 56)
	}
	return out
}

// buildArchiveStream compresses content into chunkSize blocks and returns an
// archive-resident stream over the packed result. Blocks that do not shrink
// are stored raw.
func buildArchiveStream(t *testing.T, content []byte, chunkSize uint32, ctype compress.Type) Stream {
	t.Helper()

	var comp *compress.Compressor
	if ctype != compress.None {
		var err error
		comp, err = compress.NewCompressor(ctype, chunkSize, 0)
		require.NoError(t, err)
		defer comp.Close()
	}

	var packed bytes.Buffer
	var refs []ChunkRef
	scratch := make([]byte, chunkSize)

	for off := 0; off < len(content); off += int(chunkSize) {
		end := off + int(chunkSize)
		if end > len(content) {
			end = len(content)
		}
		block := content[off:end]

		stored := block
		if comp != nil {
			if n := comp.Compress(block, scratch[:len(block)-1]); n > 0 {
				stored = scratch[:n]
			}
		}
		refs = append(refs, ChunkRef{
			Offset: int64(packed.Len()),
			Size:   uint32(len(stored)),
		})
		packed.Write(stored)
	}

	return Stream{
		Size:        int64(len(content)),
		Location:    LocationArchive,
		Source:      bytes.NewReader(packed.Bytes()),
		Chunks:      refs,
		ChunkSize:   chunkSize,
		Compression: ctype,
	}
}

func TestResourceReaderArchiveStream(t *testing.T) {
	t.Parallel()

	// Compressible data spanning several chunks, with a short tail chunk.
	content := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 400)
	content = content[:len(content)-13]

	for _, ctype := range []compress.Type{compress.LZ4, compress.Zstd, compress.Deflate} {
		s := buildArchiveStream(t, content, 4096, ctype)
		c := &recordingConsumer{}
		err := ReadStreamList(context.Background(), []*Stream{&s}, NewResourceReader(), c)
		require.NoError(t, err, "type %s", ctype)
		assert.Equal(t, content, c.content(), "type %s", ctype)
	}
}

func TestResourceReaderArchiveStreamRawChunks(t *testing.T) {
	t.Parallel()

	content := incompressible(3 * 4096)
	s := buildArchiveStream(t, content, 4096, compress.LZ4)

	// Incompressible chunks are stored at full size.
	for _, ref := range s.Chunks {
		assert.Equal(t, uint32(4096), ref.Size)
	}

	c := &recordingConsumer{}
	err := ReadStreamList(context.Background(), []*Stream{&s}, NewResourceReader(), c)
	require.NoError(t, err)
	assert.Equal(t, content, c.content())
}

func TestResourceReaderArchiveStreamUncompressed(t *testing.T) {
	t.Parallel()

	content := []byte("stored verbatim, no codec involved")
	s := buildArchiveStream(t, content, 64, compress.None)

	c := &recordingConsumer{}
	err := ReadStreamList(context.Background(), []*Stream{&s}, NewResourceReader(), c)
	require.NoError(t, err)
	assert.Equal(t, content, c.content())
}

func TestResourceReaderArchiveStreamOversizedChunkRef(t *testing.T) {
	t.Parallel()

	// A stored size larger than the stream's chunk size cannot be valid; it
	// must be reported as corruption, not read.
	s := Stream{
		Size:        64,
		Location:    LocationArchive,
		Source:      bytes.NewReader(make([]byte, 256)),
		Chunks:      []ChunkRef{{Offset: 0, Size: 128}},
		ChunkSize:   64,
		Compression: compress.LZ4,
	}

	c := &recordingConsumer{}
	err := ReadStreamList(context.Background(), []*Stream{&s}, NewResourceReader(), c)
	require.ErrorIs(t, err, compress.ErrCorruptData)
	assert.Empty(t, c.content())
}

func TestResourceReaderNoSource(t *testing.T) {
	t.Parallel()

	s := Stream{Size: 10, Location: LocationArchive, ChunkSize: 64}
	c := &recordingConsumer{}
	err := ReadStreamList(context.Background(), []*Stream{&s}, NewResourceReader(), c)
	require.ErrorIs(t, err, ErrNoStreamData)
}
