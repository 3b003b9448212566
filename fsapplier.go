package unpack

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"go.uber.org/multierr"

	"github.com/meigma/unpack/internal/platform"
)

// MaxSymlinkTargetSize bounds the size of a symbolic-link target stream.
// Targets are buffered whole before the link is created, so the bound also
// caps per-link memory.
const MaxSymlinkTargetSize = 4096

// openFile tracks one descriptor receiving the stream currently in flight.
type openFile struct {
	f     *os.File
	inode InodeID
}

// Metadata syscalls, indirected for tests.
var (
	setOwner = platform.SetOwner
	setMode  = platform.SetMode
	setTimes = platform.SetTimes
	mknod    = platform.Mknod
)

// fsApplier extracts a Tree onto a local directory in four passes:
// directories and empty files first, then absolute-target resolution for
// symlink fixup, then streamed content fanned out to every owner at once,
// then directory metadata in reverse order so child updates cannot disturb
// parent timestamps.
type fsApplier struct {
	tree   *Tree
	target string
	cfg    *config

	paths pathPool

	// Stream-in-flight state between BeginStream and EndStream.
	openFiles []openFile
	linkBuf   []byte
	linkArmed bool

	// targetAbs is the resolved absolute target path, set only when symlink
	// fixup is enabled and the job extracts symlinks.
	targetAbs string

	specialIgnored int
}

func newFSApplier(tree *Tree, target string, cfg *config) *fsApplier {
	if cfg.reader == nil {
		cfg.reader = NewResourceReader()
	}
	return &fsApplier{
		tree:   tree,
		target: filepath.Clean(target),
		cfg:    cfg,
	}
}

// Name implements Applier.
func (a *fsApplier) Name() string { return "fs" }

// SupportedFeatures implements Applier.
func (a *fsApplier) SupportedFeatures() Features {
	return Features{
		HardLinks:          true,
		Symlinks:           platform.SupportsSymlinks(),
		UnixData:           platform.SupportsUnixData(),
		Timestamps:         true,
		CaseSensitiveNames: platform.SupportsCaseSensitiveNames(),
	}
}

// Extract implements Applier.
func (a *fsApplier) Extract(ctx context.Context) error {
	a.paths.init(a.target, len(a.target)+a.maxPathLen())

	// Pass 1: directories, then empty and special files. Two loops so every
	// parent directory exists before anything is created inside it.
	for _, id := range a.tree.ExtractList() {
		if err := a.createIfDirectory(id); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, id := range a.tree.ExtractList() {
		if err := a.extractIfEmpty(id); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Pass 2: resolve the target for absolute-symlink fixup. Resolved once;
	// links created in pass 3 splice the prefix onto absolute targets.
	if a.cfg.fixAbsSymlinks && a.tree.HasExtractedSymlinks() {
		abs, err := filepath.Abs(a.target)
		if err == nil {
			abs, err = filepath.EvalSymlinks(abs)
		}
		if err != nil {
			return fmt.Errorf("unpack: resolve target for symlink fixup: %w", err)
		}
		a.targetAbs = abs
	}

	// Pass 3: stream content. Each stream is decompressed once and fanned
	// out to every owner inode.
	if err := ReadStreamList(ctx, a.tree.ExtractionStreams(), a.cfg.reader, a); err != nil {
		return err
	}

	// Pass 4: directory metadata, children before parents.
	list := a.tree.ExtractList()
	for i := len(list) - 1; i >= 0; i-- {
		d := a.tree.Dentry(list[i])
		if !a.tree.Inode(d.Inode).Dir {
			continue
		}
		path := string(a.buildPath(list[i]))
		if err := a.applyMetadata(nil, d.Inode, path); err != nil {
			return err
		}
		if err := a.report(StageMetadataApplied, path); err != nil {
			return err
		}
	}

	if a.specialIgnored > 0 {
		a.cfg.logger.Warn("special files could not be created", "count", a.specialIgnored)
	}
	return nil
}

// maxPathLen returns the longest relative extraction path, including the
// leading separator.
func (a *fsApplier) maxPathLen() int {
	max := 0
	for _, id := range a.tree.ExtractList() {
		if n := a.pathLen(id); n > max {
			max = n
		}
	}
	return max
}

// pathLen returns the length of the dentry's extraction-relative path,
// counting one separator per component.
func (a *fsApplier) pathLen(id DentryID) int {
	n := 0
	for {
		d := a.tree.Dentry(id)
		n += len(d.Name) + 1
		if d.Parent == NoDentry || !a.tree.Dentry(d.Parent).Extract {
			return n
		}
		id = d.Parent
	}
}

// buildPath fills a pooled buffer with the dentry's full extraction path,
// back to front. The walk stops at the first non-extracted ancestor, so
// descendants of filtered dentries re-root at the target. The returned slice
// is valid until the pool cycles back to its buffer.
func (a *fsApplier) buildPath(id DentryID) []byte {
	buf := a.paths.next()
	n := a.paths.targetLen + a.pathLen(id)
	pos := n
	for {
		d := a.tree.Dentry(id)
		pos -= len(d.Name)
		copy(buf[pos:], d.Name)
		pos--
		buf[pos] = filepath.Separator
		if d.Parent == NoDentry || !a.tree.Dentry(d.Parent).Extract {
			return buf[:n]
		}
		id = d.Parent
	}
}

// buildInodePath builds the path of the inode's naming dentry.
func (a *fsApplier) buildInodePath(ino InodeID) []byte {
	first, ok := a.tree.FirstExtractionDentry(ino)
	if !ok {
		return a.paths.next()[:a.paths.targetLen]
	}
	return a.buildPath(first)
}

// isStalePath reports whether a create failed because something already
// occupies the path. ELOOP covers a symlink squatting under O_NOFOLLOW.
func isStalePath(err error) bool {
	return errors.Is(err, fs.ErrExist) || errors.Is(err, syscall.ELOOP)
}

// createWithRetry runs create, and on a stale-path failure unlinks the
// occupant and retries once.
func createWithRetry(path string, create func() error) error {
	err := create()
	if err != nil && isStalePath(err) {
		if os.Remove(path) == nil {
			err = create()
		}
	}
	return err
}

// openForWrite opens path for content writes, clearing a stale occupant if
// the first open refuses it.
func openForWrite(path string) (*os.File, error) {
	var f *os.File
	err := createWithRetry(path, func() error {
		var err error
		f, err = platform.OpenForWrite(path)
		return err
	})
	return f, err
}

func (a *fsApplier) createIfDirectory(id DentryID) error {
	d := a.tree.Dentry(id)
	if !a.tree.Inode(d.Inode).Dir {
		return nil
	}
	path := string(a.buildPath(id))
	if err := os.Mkdir(path, 0o755); err != nil {
		// An existing directory is fine; its metadata is still applied in
		// the final pass.
		if !errors.Is(err, fs.ErrExist) || !isDir(path) {
			return applyErr(OpMkdir, path, err)
		}
	}
	return a.report(StageFileCreated, path)
}

func isDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}

// extractIfEmpty creates files that carry no content stream: empty regular
// files and, with unix metadata enabled, device nodes, FIFOs, and sockets.
func (a *fsApplier) extractIfEmpty(id DentryID) error {
	d := a.tree.Dentry(id)
	ino := a.tree.Inode(d.Inode)
	if ino.Dir || ino.Symlink || a.tree.hasContent(ino) {
		return nil
	}
	if first, ok := a.tree.FirstExtractionDentry(d.Inode); !ok || first != id {
		return nil
	}

	path := string(a.buildPath(id))
	special := a.cfg.preserveUnix && ino.UnixData != nil && !platform.IsRegular(ino.UnixData.Mode)
	if special {
		ud := ino.UnixData
		err := createWithRetry(path, func() error {
			return mknod(path, ud.Mode, ud.Rdev)
		})
		if err != nil {
			if errors.Is(err, fs.ErrPermission) || errors.Is(err, errors.ErrUnsupported) {
				a.specialIgnored++
				a.cfg.logger.Warn("cannot create special file", "path", path, "error", err)
				return nil
			}
			return applyErr(OpMknod, path, err)
		}
		if err := a.applyMetadata(nil, d.Inode, path); err != nil {
			return err
		}
	} else {
		f, err := openForWrite(path)
		if err != nil {
			return applyErr(OpOpen, path, err)
		}
		merr := a.applyMetadata(f, d.Inode, path)
		if cerr := f.Close(); cerr != nil && merr == nil {
			merr = applyErr(OpClose, path, cerr)
		}
		if merr != nil {
			return merr
		}
	}

	if err := a.createHardLinks(d.Inode, id, path); err != nil {
		return err
	}
	return a.report(StageFileCreated, path)
}

// createHardLinks links every remaining extracted alias of the inode to the
// already-created first path.
func (a *fsApplier) createHardLinks(ino InodeID, first DentryID, firstPath string) error {
	for _, alias := range a.tree.Inode(ino).Aliases() {
		if alias == first || !a.tree.Dentry(alias).Extract {
			continue
		}
		path := string(a.buildPath(alias))
		err := createWithRetry(path, func() error {
			return os.Link(firstPath, path)
		})
		if err != nil {
			return applyErr(OpLink, path, err)
		}
		a.paths.reuse()
	}
	return nil
}

// BeginStream implements StreamConsumer. It prepares every owner of the
// stream: symlink owners arm the target buffer, file owners open their first
// alias for writing and link the rest.
func (a *fsApplier) BeginStream(s *Stream) error {
	for _, ino := range s.Owners() {
		if err := a.beginOwner(s, ino); err != nil {
			a.abortStream()
			return err
		}
	}
	return nil
}

func (a *fsApplier) beginOwner(s *Stream, inoID InodeID) error {
	ino := a.tree.Inode(inoID)
	if ino.Symlink {
		if s.Size > MaxSymlinkTargetSize {
			return fmt.Errorf("%w: %d bytes (limit %d)", ErrLinkTargetTooLong, s.Size, MaxSymlinkTargetSize)
		}
		if a.linkBuf == nil {
			a.linkBuf = make([]byte, 0, MaxSymlinkTargetSize)
		}
		a.linkBuf = a.linkBuf[:0]
		a.linkArmed = true
		return nil
	}

	first, ok := a.tree.FirstExtractionDentry(inoID)
	if !ok {
		return nil
	}
	path := string(a.buildPath(first))
	f, err := openForWrite(path)
	if err != nil {
		return applyErr(OpOpen, path, err)
	}
	a.openFiles = append(a.openFiles, openFile{f: f, inode: inoID})
	return a.createHardLinks(inoID, first, path)
}

// ConsumeChunk implements StreamConsumer, fanning the chunk out to every
// open descriptor and the armed symlink buffer.
func (a *fsApplier) ConsumeChunk(p []byte) error {
	for _, of := range a.openFiles {
		if _, err := of.f.Write(p); err != nil {
			return applyErr(OpWrite, of.f.Name(), err)
		}
	}
	if a.linkArmed {
		a.linkBuf = append(a.linkBuf, p...)
	}
	return nil
}

// EndStream implements StreamConsumer. On success it finalizes every owner
// in order: symlinks are created from the buffered target, open files get
// their metadata and are closed. On any failure the remaining descriptors
// are closed and the stream's partial results stay on disk.
func (a *fsApplier) EndStream(s *Stream, readErr error) error {
	a.linkArmed = false
	if readErr != nil {
		a.abortStream()
		return nil
	}

	var err error
	done := 0
	for _, inoID := range s.Owners() {
		if a.tree.Inode(inoID).Symlink {
			err = a.finishSymlink(inoID)
		} else {
			of := a.openFiles[done]
			err = a.applyMetadata(of.f, inoID, of.f.Name())
			if cerr := of.f.Close(); cerr != nil && err == nil {
				err = applyErr(OpClose, of.f.Name(), cerr)
			}
			done++
		}
		if err != nil {
			break
		}
		if err = a.report(StageFileCreated, string(a.buildInodePath(inoID))); err != nil {
			break
		}
	}

	err = multierr.Append(err, a.closeOpenFiles(done))
	return err
}

// abortStream drops stream-in-flight state after a failure.
func (a *fsApplier) abortStream() {
	a.linkArmed = false
	a.closeOpenFiles(0)
}

// closeOpenFiles closes descriptors from index i on and resets the table.
// Already-closed descriptors are ignored.
func (a *fsApplier) closeOpenFiles(i int) error {
	var err error
	for ; i < len(a.openFiles); i++ {
		if cerr := a.openFiles[i].f.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	a.openFiles = a.openFiles[:0]
	return err
}

// finishSymlink creates the owner's symlink from the buffered target bytes,
// then applies its metadata by path.
func (a *fsApplier) finishSymlink(inoID InodeID) error {
	target := string(a.linkBuf)
	if a.cfg.fixAbsSymlinks && len(target) > 0 && target[0] == '/' {
		if len(a.targetAbs)+len(target) > MaxSymlinkTargetSize {
			return fmt.Errorf("%w: fixed-up target is %d bytes (limit %d)",
				ErrLinkTargetTooLong, len(a.targetAbs)+len(target), MaxSymlinkTargetSize)
		}
		target = a.targetAbs + target
	}

	first, ok := a.tree.FirstExtractionDentry(inoID)
	if !ok {
		return nil
	}
	path := string(a.buildPath(first))
	err := createWithRetry(path, func() error {
		return os.Symlink(target, path)
	})
	if err != nil {
		return applyErr(OpSymlink, path, err)
	}
	if err := a.createHardLinks(inoID, first, path); err != nil {
		return err
	}
	return a.applyMetadata(nil, inoID, path)
}

// applyMetadata applies the inode's metadata in a fixed order: ownership,
// then permission bits, then timestamps. Ownership goes first because on
// some systems changing the owner clears setuid/setgid bits; modes are never
// applied to symlinks. Failures are warnings unless the matching strict
// option escalates them.
func (a *fsApplier) applyMetadata(f *os.File, inoID InodeID, path string) error {
	ino := a.tree.Inode(inoID)

	if a.cfg.preserveUnix && ino.UnixData != nil {
		ud := ino.UnixData
		if err := setOwner(f, path, ud.UID, ud.GID); err != nil {
			if a.cfg.strictOwnership {
				return applyErr(OpSetOwner, path, err)
			}
			a.cfg.logger.Warn("cannot set ownership", "path", path, "error", err)
		}
		if !ino.Symlink {
			if err := setMode(f, path, ud.Mode); err != nil {
				if a.cfg.strictOwnership {
					return applyErr(OpSetMode, path, err)
				}
				a.cfg.logger.Warn("cannot set mode", "path", path, "error", err)
			}
		}
	}

	if !ino.ATime.IsZero() || !ino.MTime.IsZero() {
		atime, mtime := ino.ATime, ino.MTime
		if atime.IsZero() {
			atime = mtime
		}
		if mtime.IsZero() {
			mtime = atime
		}
		if err := setTimes(f, path, atime, mtime); err != nil {
			if a.cfg.strictTimestamps {
				return applyErr(OpSetTimes, path, err)
			}
			a.cfg.logger.Warn("cannot set timestamps", "path", path, "error", err)
		}
	}
	return nil
}

// report delivers a progress event for a path, rebased to be target-relative.
func (a *fsApplier) report(stage ProgressStage, path string) error {
	if a.cfg.progress == nil {
		return nil
	}
	rel, err := filepath.Rel(a.target, path)
	if err != nil {
		rel = path
	}
	return a.cfg.progress(ProgressEvent{Stage: stage, Path: rel})
}
