package unpack

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrLinkTargetTooLong is returned when a symbolic-link target stream is
	// larger than MaxSymlinkTargetSize. The link cannot be represented on
	// the filesystem, so this is always fatal to the job.
	ErrLinkTargetTooLong = errors.New("unpack: symlink target too long")

	// ErrShortStream is returned when a stream's resource yields fewer bytes
	// than the stream's declared size.
	ErrShortStream = errors.New("unpack: stream shorter than declared size")

	// ErrNoStreamData is returned when a stream has no usable storage
	// location.
	ErrNoStreamData = errors.New("unpack: stream has no data location")
)

// Op identifies the filesystem operation that failed inside an ApplyError.
type Op string

// Operations reported in ApplyError.
const (
	OpMkdir    Op = "mkdir"
	OpOpen     Op = "open"
	OpMknod    Op = "mknod"
	OpLink     Op = "link"
	OpSymlink  Op = "symlink"
	OpWrite    Op = "write"
	OpClose    Op = "close"
	OpSetOwner Op = "set owner"
	OpSetMode  Op = "set mode"
	OpSetTimes Op = "set times"
)

// ApplyError describes a filesystem operation failure during extraction,
// carrying the operation and the extraction path that failed.
type ApplyError struct {
	Op   Op
	Path string
	Err  error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("unpack: %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

func applyErr(op Op, path string, err error) error {
	return &ApplyError{Op: op, Path: path, Err: err}
}
