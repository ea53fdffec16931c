package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "quiver",
	Short: "Quiver - coordination gateway for a sharded vector database",
	Long: `Quiver is the front door of a horizontally sharded vector database.

It routes vector reads and writes across storage shards with a consistent
hash ring, replicates every write to the shard's ring successor, fans
similarity searches out to all shards, and migrates data online when the
cluster topology changes.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Quiver version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(configCmd)
}
