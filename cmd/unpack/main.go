// Command unpack compresses and decompresses chunked content containers and
// reports platform extraction capabilities.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "unpack",
	Short: "Chunked content compression and extraction tooling",
	Long: `unpack works with chunked content containers: single streams split
into fixed-size chunks, each stored compressed or raw, whichever is smaller.

Commands:
  compress    Compress a file into a chunked container
  decompress  Decompress a chunked container
  features    Show platform extraction capabilities`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
