package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decompressChunk reverses a chunk back to its original bytes.
func decompressChunk(t *testing.T, ctype Type, chunkSize uint32, c Chunk) []byte {
	t.Helper()

	if c.StoredRaw() {
		return bytes.Clone(c.Data)
	}
	d, err := NewDecompressor(ctype, chunkSize)
	require.NoError(t, err)
	defer d.Close()

	out := make([]byte, c.OriginalSize)
	require.NoError(t, d.Decompress(c.Data, out))
	return out
}

func TestSerialChunkOrdering(t *testing.T) {
	t.Parallel()

	const chunkSize = 4096
	engine, err := NewSerialChunkCompressor(Zstd, chunkSize)
	require.NoError(t, err)
	defer engine.Close()

	assert.Equal(t, uint32(chunkSize), engine.ChunkSize())
	assert.Equal(t, 1, engine.NumWorkers())

	chunks := [][]byte{
		compressibleData(chunkSize),
		compressibleData(100),
		compressibleData(2048),
	}
	for _, in := range chunks {
		require.True(t, engine.SubmitChunk(in))

		out, ok := engine.NextChunk()
		require.True(t, ok)
		assert.Equal(t, uint32(len(in)), out.OriginalSize)
		assert.Equal(t, in, decompressChunk(t, Zstd, chunkSize, out))
	}

	// Fully drained.
	_, ok := engine.NextChunk()
	assert.False(t, ok)
}

func TestSerialChunkSubmitWithoutDrain(t *testing.T) {
	t.Parallel()

	engine, err := NewSerialChunkCompressor(LZ4, 4096)
	require.NoError(t, err)
	defer engine.Close()

	first := compressibleData(1000)
	require.True(t, engine.SubmitChunk(first))

	// A second submission is rejected until the first chunk is drained, and
	// must leave the buffered chunk untouched.
	assert.False(t, engine.SubmitChunk(compressibleData(500)))

	out, ok := engine.NextChunk()
	require.True(t, ok)
	assert.Equal(t, uint32(len(first)), out.OriginalSize)
	assert.Equal(t, first, decompressChunk(t, LZ4, 4096, out))
}

func TestSerialChunkRejectsEmpty(t *testing.T) {
	t.Parallel()

	engine, err := NewSerialChunkCompressor(LZ4, 4096)
	require.NoError(t, err)
	defer engine.Close()

	assert.False(t, engine.SubmitChunk(nil))
	assert.False(t, engine.SubmitChunk([]byte{}))

	_, ok := engine.NextChunk()
	assert.False(t, ok)
}

func TestSerialChunkRawFallback(t *testing.T) {
	t.Parallel()

	const chunkSize = 4096
	engine, err := NewSerialChunkCompressor(LZ4, chunkSize)
	require.NoError(t, err)
	defer engine.Close()

	data := incompressibleData(t, chunkSize)
	require.True(t, engine.SubmitChunk(data))

	out, ok := engine.NextChunk()
	require.True(t, ok)
	assert.True(t, out.StoredRaw())
	assert.Equal(t, uint32(chunkSize), out.CompressedSize)
	assert.Equal(t, data, out.Data)
}

func TestSerialChunkInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewSerialChunkCompressor(Zstd, 0)
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = NewSerialChunkCompressor(Type(200), 4096)
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestParallelChunkOrdering(t *testing.T) {
	t.Parallel()

	const (
		chunkSize = 4096
		numChunks = 64
	)
	engine, err := NewParallelChunkCompressor(Zstd, chunkSize, 4)
	require.NoError(t, err)

	assert.Equal(t, 4, engine.NumWorkers())

	inputs := make([][]byte, numChunks)
	for i := range inputs {
		// Vary sizes so ordering bugs are visible in OriginalSize.
		inputs[i] = compressibleData(1 + (i*131)%chunkSize)
	}

	var got [][]byte
	next := 0
	for len(got) < numChunks {
		for next < numChunks && engine.SubmitChunk(inputs[next]) {
			next++
		}
		out, ok := engine.NextChunk()
		require.True(t, ok)
		got = append(got, decompressChunk(t, Zstd, chunkSize, out))
	}

	_, ok := engine.NextChunk()
	assert.False(t, ok)
	require.NoError(t, engine.Close())

	for i, in := range inputs {
		assert.Equal(t, in, got[i], "chunk %d out of order or corrupt", i)
	}
}

func TestParallelChunkSubmitBackpressure(t *testing.T) {
	t.Parallel()

	engine, err := NewParallelChunkCompressor(LZ4, 1024, 2)
	require.NoError(t, err)
	defer engine.Close()

	// Four slots for two workers: the fifth submission must be rejected.
	data := compressibleData(512)
	for i := 0; i < 4; i++ {
		require.True(t, engine.SubmitChunk(data))
	}
	assert.False(t, engine.SubmitChunk(data))

	_, ok := engine.NextChunk()
	require.True(t, ok)
	assert.True(t, engine.SubmitChunk(data))
}

func TestParallelChunkSingleWorkerIsSerial(t *testing.T) {
	t.Parallel()

	engine, err := NewParallelChunkCompressor(Zstd, 4096, 1)
	require.NoError(t, err)
	defer engine.Close()

	assert.Equal(t, 1, engine.NumWorkers())

	require.True(t, engine.SubmitChunk(compressibleData(100)))
	assert.False(t, engine.SubmitChunk(compressibleData(100)))
}

func TestParallelChunkCloseIdempotent(t *testing.T) {
	t.Parallel()

	engine, err := NewParallelChunkCompressor(Deflate, 2048, 3)
	require.NoError(t, err)

	require.True(t, engine.SubmitChunk(compressibleData(100)))
	_, ok := engine.NextChunk()
	require.True(t, ok)

	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())
}
