package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/unpack"
)

var decompressCmd = &cobra.Command{
	Use:   "decompress <input> <output>",
	Short: "Decompress a chunked container",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDecompress(cmd, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(decompressCmd)
}

// fileSource adapts an open file to unpack.ByteSource.
type fileSource struct {
	f    *os.File
	size int64
}

func (s fileSource) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }

func (s fileSource) Size() int64 { return s.size }

func runDecompress(cmd *cobra.Command, inPath, outPath string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	header, err := readContainerHeader(in)
	if err != nil {
		return err
	}
	refs, err := readChunkTable(in, header, info.Size())
	if err != nil {
		return err
	}

	stream := unpack.Stream{
		Size:        int64(header.size),
		Location:    unpack.LocationArchive,
		Source:      fileSource{f: in, size: info.Size()},
		Chunks:      refs,
		ChunkSize:   header.chunkSize,
		Compression: header.ctype,
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	reader := unpack.NewResourceReader()
	defer reader.Close()

	err = reader.ReadStream(cmd.Context(), &stream, func(p []byte) error {
		_, werr := out.Write(p)
		return werr
	})
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	fmt.Printf("%s: %d bytes (%s, %d chunks)\n", outPath, header.size, header.ctype, len(refs))
	return nil
}
