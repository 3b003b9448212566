package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/meigma/unpack"
	"github.com/meigma/unpack/compress"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Show platform extraction capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFeatures()
	},
}

func init() {
	rootCmd.AddCommand(featuresCmd)
}

func runFeatures() error {
	applier := unpack.NewApplier(unpack.NewTree(), ".")
	features := applier.SupportedFeatures()

	fmt.Printf("platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("applier:  %s\n", applier.Name())
	fmt.Println()
	fmt.Printf("hard links:           %v\n", features.HardLinks)
	fmt.Printf("symbolic links:       %v\n", features.Symlinks)
	fmt.Printf("unix metadata:        %v\n", features.UnixData)
	fmt.Printf("timestamps:           %v\n", features.Timestamps)
	fmt.Printf("case-sensitive names: %v\n", features.CaseSensitiveNames)
	fmt.Println()

	fmt.Println("compression types:")
	for _, t := range []compress.Type{compress.LZ4, compress.Zstd, compress.Deflate} {
		mem := compress.NeededMemory(t, 64<<10, 0)
		fmt.Printf("  %-8s ~%d KiB per handle at 64 KiB chunks\n", t, mem>>10)
	}
	return nil
}
