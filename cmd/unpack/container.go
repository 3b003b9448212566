package main

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meigma/unpack"
	"github.com/meigma/unpack/compress"
)

// Container layout:
//
//	magic      [4]byte "upk1"
//	type       uint8   compression type
//	chunkSize  uint32  little-endian
//	size       uint64  little-endian, uncompressed length
//	chunks     repeated: uint32 stored size, then the stored bytes
//
// A chunk whose stored size equals its uncompressed size is raw.
var containerMagic = [4]byte{'u', 'p', 'k', '1'}

const containerHeaderSize = 4 + 1 + 4 + 8

type containerHeader struct {
	ctype     compress.Type
	chunkSize uint32
	size      uint64
}

func writeContainerHeader(w io.Writer, h containerHeader) error {
	buf := make([]byte, containerHeaderSize)
	copy(buf, containerMagic[:])
	buf[4] = byte(h.ctype)
	binary.LittleEndian.PutUint32(buf[5:], h.chunkSize)
	binary.LittleEndian.PutUint64(buf[9:], h.size)
	_, err := w.Write(buf)
	return err
}

func readContainerHeader(r io.Reader) (containerHeader, error) {
	buf := make([]byte, containerHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return containerHeader{}, fmt.Errorf("read container header: %w", err)
	}
	if [4]byte(buf[:4]) != containerMagic {
		return containerHeader{}, fmt.Errorf("not a chunked container (bad magic)")
	}
	h := containerHeader{
		ctype:     compress.Type(buf[4]),
		chunkSize: binary.LittleEndian.Uint32(buf[5:]),
		size:      binary.LittleEndian.Uint64(buf[9:]),
	}
	if h.chunkSize == 0 {
		return containerHeader{}, fmt.Errorf("container has zero chunk size")
	}
	return h, nil
}

// readChunkTable walks the chunk frames of a container and returns refs into
// the underlying source, with offsets past each frame's size prefix.
func readChunkTable(r io.ReaderAt, h containerHeader, total int64) ([]unpack.ChunkRef, error) {
	var refs []unpack.ChunkRef
	var sizeBuf [4]byte

	off := int64(containerHeaderSize)
	remaining := h.size
	for remaining > 0 {
		if _, err := r.ReadAt(sizeBuf[:], off); err != nil {
			return nil, fmt.Errorf("read chunk frame at offset %d: %w", off, err)
		}
		stored := binary.LittleEndian.Uint32(sizeBuf[:])
		usize := uint64(h.chunkSize)
		if usize > remaining {
			usize = remaining
		}
		if stored == 0 || uint64(stored) > usize {
			return nil, fmt.Errorf("invalid stored chunk size %d at offset %d", stored, off)
		}
		off += 4
		if off+int64(stored) > total {
			return nil, fmt.Errorf("chunk at offset %d extends past end of container", off)
		}
		refs = append(refs, unpack.ChunkRef{Offset: off, Size: stored})
		off += int64(stored)
		remaining -= usize
	}
	return refs, nil
}

func writeChunkFrame(w io.Writer, c compress.Chunk) error {
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], c.CompressedSize)
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(c.Data)
	return err
}
