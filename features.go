package unpack

// Features describes the capabilities an applier supports on its target
// filesystem. The job planner uses this to decide which dentries and which
// metadata to attempt.
type Features struct {
	// HardLinks indicates multiple directory entries can share one inode.
	HardLinks bool

	// Symlinks indicates symbolic links can be created.
	Symlinks bool

	// UnixData indicates ownership, permission modes, and device nodes can
	// be preserved.
	UnixData bool

	// Timestamps indicates modification and access times can be applied.
	Timestamps bool

	// CaseSensitiveNames indicates names differing only in case are
	// distinct.
	CaseSensitiveNames bool
}
