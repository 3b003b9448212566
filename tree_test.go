package unpack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeExtractListOrder(t *testing.T) {
	t.Parallel()

	tr := NewTree()
	dirIno := tr.AddInode(Inode{Dir: true, Stream: NoStream})
	fileIno := tr.AddInode(Inode{Stream: NoStream})

	root := tr.AddDentry("a", NoDentry, dirIno)
	child := tr.AddDentry("b", root, fileIno)

	require.Equal(t, []DentryID{root, child}, tr.ExtractList())
	assert.Equal(t, "b", tr.Dentry(child).Name)
	assert.Equal(t, root, tr.Dentry(child).Parent)
}

func TestTreeFilteredDentry(t *testing.T) {
	t.Parallel()

	tr := NewTree()
	dirIno := tr.AddInode(Inode{Dir: true, Stream: NoStream})
	fileIno := tr.AddInode(Inode{Stream: NoStream})

	filtered := tr.AddFilteredDentry("skipped", NoDentry, dirIno)
	kept := tr.AddDentry("kept", filtered, fileIno)

	require.Equal(t, []DentryID{kept}, tr.ExtractList())
	assert.False(t, tr.Dentry(filtered).Extract)

	// The filtered name never becomes an inode's naming dentry.
	first, ok := tr.FirstExtractionDentry(dirIno)
	assert.False(t, ok)
	assert.Equal(t, NoDentry, first)

	first, ok = tr.FirstExtractionDentry(fileIno)
	require.True(t, ok)
	assert.Equal(t, kept, first)
}

func TestTreeFirstExtractionDentrySkipsFiltered(t *testing.T) {
	t.Parallel()

	tr := NewTree()
	ino := tr.AddInode(Inode{Stream: NoStream})
	tr.AddFilteredDentry("old-name", NoDentry, ino)
	second := tr.AddDentry("new-name", NoDentry, ino)

	first, ok := tr.FirstExtractionDentry(ino)
	require.True(t, ok)
	assert.Equal(t, second, first)
}

func TestTreeHasExtractedSymlinks(t *testing.T) {
	t.Parallel()

	tr := NewTree()
	plain := tr.AddInode(Inode{Stream: NoStream})
	tr.AddDentry("f", NoDentry, plain)
	assert.False(t, tr.HasExtractedSymlinks())

	link := tr.AddInode(Inode{Symlink: true, Stream: tr.AddStream(MemoryStream([]byte("f")))})
	tr.AddDentry("l", NoDentry, link)
	assert.True(t, tr.HasExtractedSymlinks())
}

func TestTreeExtractionStreams(t *testing.T) {
	t.Parallel()

	tr := NewTree()
	shared := tr.AddStream(MemoryStream([]byte("shared content")))
	unique := tr.AddStream(MemoryStream([]byte("unique")))

	dir := tr.AddInode(Inode{Dir: true, Stream: NoStream})
	empty := tr.AddInode(Inode{Stream: NoStream})
	a := tr.AddInode(Inode{Stream: shared})
	b := tr.AddInode(Inode{Stream: shared})
	c := tr.AddInode(Inode{Stream: unique})

	tr.AddDentry("dir", NoDentry, dir)
	tr.AddDentry("empty", NoDentry, empty)
	da := tr.AddDentry("a", NoDentry, a)
	tr.AddDentry("b", NoDentry, b)
	tr.AddDentry("c", NoDentry, c)
	// A hard link to an already-counted inode adds no owner.
	tr.AddDentry("a2", NoDentry, a)
	_ = da

	streams := tr.ExtractionStreams()
	require.Len(t, streams, 2)

	assert.Equal(t, []InodeID{a, b}, streams[0].Owners())
	assert.Equal(t, []InodeID{c}, streams[1].Owners())

	// Rebuilding resets the owner lists instead of accumulating.
	streams = tr.ExtractionStreams()
	require.Len(t, streams, 2)
	assert.Equal(t, []InodeID{a, b}, streams[0].Owners())
}

func TestTreeAddInodeTimes(t *testing.T) {
	t.Parallel()

	tr := NewTree()
	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ino := tr.AddInode(Inode{Stream: NoStream, MTime: mtime})
	assert.Equal(t, mtime, tr.Inode(ino).MTime)
	assert.Empty(t, tr.Inode(ino).Aliases())
}
