//go:build unix

// Package platform isolates the filesystem metadata primitives that differ
// between unix and other targets.
package platform

import (
	"io/fs"
	"os"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// SupportsUnixData reports whether ownership, modes, and device nodes can be
// preserved on this platform.
func SupportsUnixData() bool { return true }

// SupportsSymlinks reports whether symbolic links can be created.
func SupportsSymlinks() bool { return true }

// SupportsCaseSensitiveNames reports whether names differing only in case are
// distinct directory entries. Darwin filesystems are case-insensitive by
// default.
func SupportsCaseSensitiveNames() bool { return runtime.GOOS != "darwin" }

// OpenForWrite opens path for extraction writes, creating or truncating it.
// O_NOFOLLOW keeps a symlink squatting at the path from redirecting the
// write; the caller sees the failure and retries after unlinking.
func OpenForWrite(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY|syscall.O_NOFOLLOW, 0o644)
}

// SetOwner changes ownership through the open descriptor when available,
// otherwise through the path without following symlinks.
func SetOwner(f *os.File, path string, uid, gid uint32) error {
	if f != nil {
		return unix.Fchown(int(f.Fd()), int(uid), int(gid))
	}
	return unix.Lchown(path, int(uid), int(gid))
}

// SetMode changes permission bits through the open descriptor when
// available. Symlinks have no settable mode; callers skip them.
func SetMode(f *os.File, path string, mode uint32) error {
	if f != nil {
		return unix.Fchmod(int(f.Fd()), mode&0o7777)
	}
	return unix.Chmod(path, mode&0o7777)
}

// SetTimes applies access and modification times through the open descriptor
// when available, otherwise through the path without following symlinks.
func SetTimes(f *os.File, path string, atime, mtime time.Time) error {
	if f != nil {
		tv := []unix.Timeval{
			unix.NsecToTimeval(atime.UnixNano()),
			unix.NsecToTimeval(mtime.UnixNano()),
		}
		return unix.Futimes(int(f.Fd()), tv)
	}
	ts := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, ts, unix.AT_SYMLINK_NOFOLLOW)
}

// Mknod creates a special file (device, FIFO, socket) with the given
// st_mode bits.
func Mknod(path string, mode uint32, rdev uint64) error {
	return unix.Mknod(path, mode, int(rdev))
}

// IsRegular reports whether st_mode bits describe a regular file.
func IsRegular(mode uint32) bool {
	return mode&unix.S_IFMT == unix.S_IFREG
}

// Owner extracts UID and GID from file info.
func Owner(info fs.FileInfo) (uid, gid uint32) {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return stat.Uid, stat.Gid
	}
	return 0, 0
}
