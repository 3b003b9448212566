package unpack

import (
	"context"
	"io"
	"log/slog"
)

// Applier extracts one prepared Tree onto a target. Implementations are
// bound to a single job; create a new Applier per extraction.
type Applier interface {
	// Name identifies the applier backend.
	Name() string

	// SupportedFeatures declares the backend's capabilities so the job
	// planner can decide which dentries and metadata to attempt.
	SupportedFeatures() Features

	// Extract runs the job. The Tree is read-only for the duration; the
	// context is checked between streams and passes, not mid-chunk.
	Extract(ctx context.Context) error
}

type config struct {
	preserveUnix     bool
	fixAbsSymlinks   bool
	strictOwnership  bool
	strictTimestamps bool

	logger   *slog.Logger
	progress ProgressFunc
	reader   StreamReader
}

func defaultConfig() *config {
	return &config{
		logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)})),
	}
}

// Option configures an extraction job.
type Option func(*config)

// WithPreserveUnixMetadata preserves ownership, permission modes, and device
// nodes recorded on inodes. By default only timestamps are applied.
func WithPreserveUnixMetadata(preserve bool) Option {
	return func(c *config) {
		c.preserveUnix = preserve
	}
}

// WithFixAbsoluteSymlinks rewrites absolute symlink targets by prefixing the
// resolved absolute path of the extraction target, so links resolve inside
// the extracted tree instead of the live root.
func WithFixAbsoluteSymlinks(fix bool) Option {
	return func(c *config) {
		c.fixAbsSymlinks = fix
	}
}

// WithStrictOwnership escalates ownership and permission failures from
// warnings to job-fatal errors.
func WithStrictOwnership(strict bool) Option {
	return func(c *config) {
		c.strictOwnership = strict
	}
}

// WithStrictTimestamps escalates timestamp failures from warnings to
// job-fatal errors.
func WithStrictTimestamps(strict bool) Option {
	return func(c *config) {
		c.strictTimestamps = strict
	}
}

// WithLogger sets the logger for warnings. The default discards them.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithProgress sets the progress sink. Errors returned by the sink abort the
// job like any other callback error.
func WithProgress(fn ProgressFunc) Option {
	return func(c *config) {
		c.progress = fn
	}
}

// WithStreamReader overrides the reader that supplies decompressed stream
// bytes. The default is a ResourceReader over the streams' own resources.
func WithStreamReader(r StreamReader) Option {
	return func(c *config) {
		c.reader = r
	}
}

// NewApplier creates the filesystem applier for a job. The target directory
// must exist.
func NewApplier(tree *Tree, target string, opts ...Option) Applier {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return newFSApplier(tree, target, cfg)
}

// Extract materializes the tree's extraction list under target using the
// filesystem applier.
func Extract(ctx context.Context, tree *Tree, target string, opts ...Option) error {
	return NewApplier(tree, target, opts...).Extract(ctx)
}
