//go:build !unix

package platform

import (
	"errors"
	"io/fs"
	"os"
	"time"
)

// SupportsUnixData reports whether ownership, modes, and device nodes can be
// preserved on this platform.
func SupportsUnixData() bool { return false }

// SupportsSymlinks reports whether symbolic links can be created.
func SupportsSymlinks() bool { return false }

// SupportsCaseSensitiveNames reports whether names differing only in case are
// distinct directory entries.
func SupportsCaseSensitiveNames() bool { return false }

// OpenForWrite opens path for extraction writes, creating or truncating it.
// Without O_NOFOLLOW the symlink check is a separate lstat.
func OpenForWrite(path string) (*os.File, error) {
	if info, err := os.Lstat(path); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		return nil, &os.PathError{Op: "open", Path: path, Err: fs.ErrExist}
	}
	return os.OpenFile(path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
}

// SetOwner is not supported; ownership preservation is disabled by the
// feature query.
func SetOwner(f *os.File, path string, uid, gid uint32) error {
	return errors.ErrUnsupported
}

// SetMode changes permission bits.
func SetMode(f *os.File, path string, mode uint32) error {
	perm := os.FileMode(mode & 0o777)
	if f != nil {
		return f.Chmod(perm)
	}
	return os.Chmod(path, perm)
}

// SetTimes applies access and modification times.
func SetTimes(f *os.File, path string, atime, mtime time.Time) error {
	if f != nil {
		path = f.Name()
	}
	return os.Chtimes(path, atime, mtime)
}

// Mknod is not supported.
func Mknod(path string, mode uint32, rdev uint64) error {
	return errors.ErrUnsupported
}

// IsRegular reports whether st_mode bits describe a regular file. Without
// unix type bits every mode is treated as regular.
func IsRegular(mode uint32) bool { return true }

// Owner returns zero UID/GID.
func Owner(info fs.FileInfo) (uid, gid uint32) { return 0, 0 }
