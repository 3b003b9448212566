package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/unpack/compress"
)

var (
	compressType      string
	compressLevel     uint32
	compressChunkSize uint32
	compressWorkers   int
	compressSelfCheck bool
)

var compressCmd = &cobra.Command{
	Use:   "compress <input> <output>",
	Short: "Compress a file into a chunked container",
	Long: `Compress a file into a chunked container. The input is split into
fixed-size chunks compressed independently; chunks that do not shrink are
stored raw.

Examples:
  unpack compress --type zstd --level 80 data.bin data.upk
  unpack compress --workers 8 --chunk-size 131072 data.bin data.upk`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(compressCmd)

	compressCmd.Flags().StringVarP(&compressType, "type", "t", "lz4", "compression type (lz4, zstd, deflate)")
	compressCmd.Flags().Uint32VarP(&compressLevel, "level", "l", 0, "effort level 10..100 (0 = default)")
	compressCmd.Flags().Uint32Var(&compressChunkSize, "chunk-size", 64<<10, "chunk size in bytes")
	compressCmd.Flags().IntVarP(&compressWorkers, "workers", "w", 0, "worker goroutines (0 = all CPUs)")
	compressCmd.Flags().BoolVar(&compressSelfCheck, "self-check", false, "verify every compressed chunk round-trips")
}

func runCompress(inPath, outPath string) error {
	ctype, err := compress.ParseType(compressType)
	if err != nil {
		return err
	}
	if ctype == compress.None {
		return fmt.Errorf("compression type %q stores nothing; nothing to do", compressType)
	}
	if compressLevel != 0 {
		if err := compress.SetDefaultLevel(ctype, compressLevel); err != nil {
			return err
		}
	}

	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	var opts []compress.CompressorOption
	if compressSelfCheck {
		opts = append(opts, compress.WithSelfCheck())
	}
	engine, err := compress.NewParallelChunkCompressor(ctype, compressChunkSize, compressWorkers, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	header := containerHeader{
		ctype:     ctype,
		chunkSize: compressChunkSize,
		size:      uint64(info.Size()),
	}
	if err := writeContainerHeader(out, header); err != nil {
		return err
	}

	var storedTotal uint64
	drain := func() error {
		chunk, ok := engine.NextChunk()
		if !ok {
			return nil
		}
		storedTotal += uint64(chunk.CompressedSize)
		return writeChunkFrame(out, chunk)
	}

	buf := make([]byte, compressChunkSize)
	for {
		n, rerr := io.ReadFull(in, buf)
		if n > 0 {
			for !engine.SubmitChunk(buf[:n]) {
				if err := drain(); err != nil {
					return err
				}
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
				break
			}
			return rerr
		}
	}
	for {
		chunk, ok := engine.NextChunk()
		if !ok {
			break
		}
		storedTotal += uint64(chunk.CompressedSize)
		if err := writeChunkFrame(out, chunk); err != nil {
			return err
		}
	}
	if err := engine.Close(); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if info.Size() > 0 {
		fmt.Printf("%s: %d -> %d bytes (%.1f%%) using %s, %d workers\n",
			outPath, info.Size(), storedTotal,
			float64(storedTotal)*100/float64(info.Size()),
			ctype, engine.NumWorkers())
	}
	return nil
}
