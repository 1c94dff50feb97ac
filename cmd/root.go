package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global output flags only
	verbose      bool
	quiet        bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "aegisctl",
	Short: "Storage and networking core for the aegisos kernel",
	Long: `aegisctl drives the storage-and-networking core of the aegisos kernel:
a disk buffer cache, on-volume block allocator, volume mount/dismount,
socket-based message passing, and a remote-file RPC layer that makes
another node's files appear local.

Commands:
  mount       Mount a file-backed volume and report its BAT state
  alloc-debug Run an allocate/free cycle against a mounted volume
  serve       Run the remote-file RPC server loop against local storage`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Only global output control flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}

// GetQuiet returns the quiet flag value
func GetQuiet() bool {
	return quiet
}

// GetOutputFormat returns the output format
func GetOutputFormat() string {
	return outputFormat
}
