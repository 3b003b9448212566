package unpack

import "time"

// Inode, dentry, and stream handles. Graph relationships are plain index
// lookups into the owning Tree's arenas, never pointers, so the graph has no
// ownership cycles.
type (
	// InodeID addresses an inode within a Tree.
	InodeID int32

	// DentryID addresses a dentry within a Tree.
	DentryID int32

	// StreamID addresses a content stream within a Tree.
	StreamID int32
)

// Invalid handle values.
const (
	// NoInode is the zero-value-safe "no inode" handle.
	NoInode InodeID = -1

	// NoDentry marks a dentry with no parent: the dentry sits directly
	// under the extraction target.
	NoDentry DentryID = -1

	// NoStream marks an inode with no content stream (directories, empty
	// files).
	NoStream StreamID = -1
)

// UnixData carries the unix-specific metadata of an inode. Mode holds the
// full st_mode bits including the file type, so special files (devices,
// FIFOs, sockets) are recognized by their type bits.
type UnixData struct {
	UID  uint32
	GID  uint32
	Mode uint32
	Rdev uint64
}

// Inode represents the unique identity of a filesystem object. An inode owns
// one or more dentries (hard-link aliases); its lifetime is the lifetime of
// the Tree.
type Inode struct {
	// Dir indicates the inode is a directory.
	Dir bool

	// Symlink indicates the inode is a symbolic link; its stream holds the
	// link target bytes.
	Symlink bool

	// Stream is the content stream, or NoStream for directories and files
	// without content.
	Stream StreamID

	// UnixData is the unix metadata to preserve, if any.
	UnixData *UnixData

	// ATime and MTime are the recorded access and modification times.
	// Zero times are not applied.
	ATime time.Time
	MTime time.Time

	aliases []DentryID
}

// Aliases returns the inode's dentries in insertion order.
func (ino *Inode) Aliases() []DentryID { return ino.aliases }

// Dentry is one name entry in the extraction tree. Every dentry belongs to
// exactly one inode; dentries form a tree through their parent handles.
type Dentry struct {
	// Name is the entry's name in extraction-native encoding.
	Name string

	// Parent is the containing directory's dentry, or NoDentry for entries
	// directly under the extraction target.
	Parent DentryID

	// Inode is the identity this name refers to.
	Inode InodeID

	// Extract indicates the dentry is part of the current extraction. A
	// filtered dentry terminates ancestor path walks: its extracted
	// descendants re-root at the extraction target.
	Extract bool
}

// Tree is the arena of inodes, dentries, and streams describing one
// extraction job. The external lookup-table layer populates it; during
// extraction it is read-only except for the per-job stream owner lists,
// which Tree rebuilds on demand. A Tree serves one extraction at a time.
type Tree struct {
	inodes   []Inode
	dentries []Dentry
	streams  []Stream

	extractList []DentryID
}

// NewTree creates an empty extraction tree.
func NewTree() *Tree {
	return &Tree{}
}

// AddStream adds a content stream and returns its handle.
func (t *Tree) AddStream(s Stream) StreamID {
	t.streams = append(t.streams, s)
	return StreamID(len(t.streams) - 1)
}

// AddInode adds an inode and returns its handle. Set Stream to NoStream for
// directories and files without content; the zero value refers to the first
// stream added to the tree.
func (t *Tree) AddInode(ino Inode) InodeID {
	ino.aliases = nil
	t.inodes = append(t.inodes, ino)
	return InodeID(len(t.inodes) - 1)
}

// AddDentry adds a name for an inode under the given parent and appends the
// dentry to both the inode's alias list and the extraction order. Dentries
// must be added parents-first; AddDentry marks the dentry for extraction.
func (t *Tree) AddDentry(name string, parent DentryID, inode InodeID) DentryID {
	t.dentries = append(t.dentries, Dentry{
		Name:    name,
		Parent:  parent,
		Inode:   inode,
		Extract: true,
	})
	id := DentryID(len(t.dentries) - 1)
	t.inodes[inode].aliases = append(t.inodes[inode].aliases, id)
	t.extractList = append(t.extractList, id)
	return id
}

// AddFilteredDentry adds a name that exists in the archive but is excluded
// from this extraction. It participates in the dentry tree (descendants may
// still be extracted) but never in path construction.
func (t *Tree) AddFilteredDentry(name string, parent DentryID, inode InodeID) DentryID {
	id := t.AddDentry(name, parent, inode)
	t.dentries[id].Extract = false
	t.extractList = t.extractList[:len(t.extractList)-1]
	return id
}

// Dentry returns the dentry for a handle. The pointer is valid until the
// next Add call.
func (t *Tree) Dentry(id DentryID) *Dentry { return &t.dentries[id] }

// Inode returns the inode for a handle. The pointer is valid until the next
// Add call.
func (t *Tree) Inode(id InodeID) *Inode { return &t.inodes[id] }

// Stream returns the stream for a handle. The pointer is valid until the
// next Add call.
func (t *Tree) Stream(id StreamID) *Stream { return &t.streams[id] }

// ExtractList returns the dentries to extract, in extraction order (parents
// before children).
func (t *Tree) ExtractList() []DentryID { return t.extractList }

// FirstExtractionDentry returns the inode's designated naming dentry: its
// first alias that is part of the extraction. ok is false when no alias is
// extracted.
func (t *Tree) FirstExtractionDentry(ino InodeID) (DentryID, bool) {
	for _, id := range t.inodes[ino].aliases {
		if t.dentries[id].Extract {
			return id, true
		}
	}
	return NoDentry, false
}

// HasExtractedSymlinks reports whether the extraction list contains any
// symbolic links.
func (t *Tree) HasExtractedSymlinks() bool {
	for _, id := range t.extractList {
		if t.inodes[t.dentries[id].Inode].Symlink {
			return true
		}
	}
	return false
}

// hasContent reports whether the inode has a nonempty content stream.
func (t *Tree) hasContent(ino *Inode) bool {
	return ino.Stream != NoStream && t.streams[ino.Stream].Size > 0
}

// ExtractionStreams rebuilds the per-job owner lists and returns the streams
// that carry content for this extraction, in first-use order. Each stream's
// owner list holds every inode that must receive its bytes; deduplicated
// files share one stream across many owners.
func (t *Tree) ExtractionStreams() []*Stream {
	for i := range t.streams {
		t.streams[i].owners = t.streams[i].owners[:0]
	}

	var order []StreamID
	seen := make(map[InodeID]struct{})
	for _, id := range t.extractList {
		d := &t.dentries[id]
		if _, ok := seen[d.Inode]; ok {
			continue
		}
		seen[d.Inode] = struct{}{}

		ino := &t.inodes[d.Inode]
		if ino.Dir || !t.hasContent(ino) {
			continue
		}
		s := &t.streams[ino.Stream]
		if len(s.owners) == 0 {
			order = append(order, ino.Stream)
		}
		s.owners = append(s.owners, d.Inode)
	}

	streams := make([]*Stream, len(order))
	for i, id := range order {
		streams[i] = &t.streams[id]
	}
	return streams
}
