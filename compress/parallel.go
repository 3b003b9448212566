package compress

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// parallelChunkCompressor compresses several chunks concurrently while
// draining results in submission order. Each worker owns its own compressor
// handle; ordering is enforced by draining slots in the order they were
// filled, waiting for each slot's completion signal.
type parallelChunkCompressor struct {
	chunkSize uint32
	workers   int

	slots     []*chunkSlot
	submitIdx int
	drainIdx  int
	inFlight  int

	work   chan *chunkSlot
	g      *errgroup.Group
	closed bool
}

type chunkSlot struct {
	udata []byte
	cdata []byte
	ulen  uint32
	clen  int
	done  chan struct{}
}

// NewParallelChunkCompressor creates a chunk engine with the given number of
// worker goroutines. workers <= 0 selects GOMAXPROCS. The engine buffers two
// chunks per worker so submission can stay ahead of compression.
func NewParallelChunkCompressor(t Type, chunkSize uint32, workers int, opts ...CompressorOption) (ChunkCompressor, error) {
	if chunkSize == 0 {
		return nil, ErrInvalidParam
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers == 1 {
		return NewSerialChunkCompressor(t, chunkSize, opts...)
	}

	compressors := make([]*Compressor, workers)
	for i := range compressors {
		c, err := NewCompressor(t, chunkSize, 0, opts...)
		if err != nil {
			for _, created := range compressors[:i] {
				created.Close()
			}
			return nil, err
		}
		compressors[i] = c
	}

	numSlots := workers * 2
	p := &parallelChunkCompressor{
		chunkSize: chunkSize,
		workers:   workers,
		slots:     make([]*chunkSlot, numSlots),
		work:      make(chan *chunkSlot, numSlots),
		g:         &errgroup.Group{},
	}
	for i := range p.slots {
		p.slots[i] = &chunkSlot{
			udata: make([]byte, chunkSize),
			cdata: make([]byte, chunkSize-1),
			done:  make(chan struct{}, 1),
		}
	}

	for _, c := range compressors {
		c := c
		p.g.Go(func() error {
			for slot := range p.work {
				slot.clen = c.Compress(slot.udata[:slot.ulen], slot.cdata[:slot.ulen-1])
				slot.done <- struct{}{}
			}
			return c.Close()
		})
	}
	return p, nil
}

func (p *parallelChunkCompressor) ChunkSize() uint32 { return p.chunkSize }

func (p *parallelChunkCompressor) NumWorkers() int { return p.workers }

func (p *parallelChunkCompressor) SubmitChunk(chunk []byte) bool {
	if p.inFlight == len(p.slots) || len(chunk) == 0 {
		return false
	}
	if len(chunk) > int(p.chunkSize) {
		panic(fmt.Sprintf("compress: chunk of %d bytes exceeds chunk size %d", len(chunk), p.chunkSize))
	}

	// The slot at submitIdx was drained at least len(slots) submissions ago,
	// so its buffers are free to reuse.
	slot := p.slots[p.submitIdx]
	p.submitIdx = (p.submitIdx + 1) % len(p.slots)
	p.inFlight++

	copy(slot.udata, chunk)
	slot.ulen = uint32(len(chunk))
	p.work <- slot
	return true
}

func (p *parallelChunkCompressor) NextChunk() (Chunk, bool) {
	if p.inFlight == 0 {
		return Chunk{}, false
	}

	slot := p.slots[p.drainIdx]
	p.drainIdx = (p.drainIdx + 1) % len(p.slots)
	p.inFlight--

	<-slot.done

	if slot.clen == 0 {
		return Chunk{Data: slot.udata[:slot.ulen], CompressedSize: slot.ulen, OriginalSize: slot.ulen}, true
	}
	return Chunk{Data: slot.cdata[:slot.clen], CompressedSize: uint32(slot.clen), OriginalSize: slot.ulen}, true
}

func (p *parallelChunkCompressor) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.work)
	return p.g.Wait()
}
