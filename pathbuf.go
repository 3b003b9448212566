package unpack

// numPathBufs is the number of path buffers cycled by the applier. Two are
// needed because creating a hard link keeps the link source and the new path
// live at the same time.
const numPathBufs = 2

// pathPool holds fixed-capacity path buffers sized once, before extraction,
// to the longest possible extraction path. Building a path consumes the next
// buffer in rotation, so at most numPathBufs built paths are valid at once;
// building another invalidates the oldest. Callers that only needed a
// transient path hand the buffer back with reuse.
type pathPool struct {
	bufs      [numPathBufs][]byte
	which     int
	targetLen int
}

// init allocates the buffers with room for maxPath bytes and pre-fills each
// with the target prefix.
func (p *pathPool) init(target string, maxPath int) {
	p.targetLen = len(target)
	p.which = 0
	for i := range p.bufs {
		p.bufs[i] = make([]byte, maxPath)
		copy(p.bufs[i], target)
	}
}

// next returns the next buffer in rotation.
func (p *pathPool) next() []byte {
	buf := p.bufs[p.which]
	p.which = (p.which + 1) % numPathBufs
	return buf
}

// reuse makes the next build use the same buffer as the previous one,
// keeping the build before it valid. Used when iterating hard-link aliases
// against a fixed link source.
func (p *pathPool) reuse() {
	p.which = (p.which + numPathBufs - 1) % numPathBufs
}
