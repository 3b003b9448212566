// Package unpack materializes deduplicated, compressed archive content onto
// a live filesystem.
//
// The archive container format, lookup-table construction, and integrity
// verification live outside this package: callers describe what to extract
// with a [Tree] of inodes, dentries, and content streams, and unpack drives
// the extraction — directories and empty files first, then streamed content
// fanned out to every hard-link alias, symbolic links created atomically from
// fully buffered targets, and directory metadata applied last so child
// creation does not disturb recorded timestamps.
//
// # Quick start
//
// Build a tree and extract it:
//
//	tree := unpack.NewTree()
//	stream := tree.AddStream(unpack.MemoryStream([]byte("hello\n")))
//	ino := tree.AddInode(unpack.Inode{Stream: stream})
//	tree.AddDentry("hello.txt", unpack.NoDentry, ino)
//	err := unpack.Extract(ctx, tree, "/tmp/out",
//	    unpack.WithPreserveUnixMetadata(true),
//	)
//
// Compression codecs and the chunked-compression engine used when writing
// archives live in the compress subpackage.
package unpack
