// goflow-syncd is the background sync daemon for GoFlow projects.
//
// It watches the editor's spool directory for mutation descriptors, queues
// them durably in a local SQLite database, and delivers them to the sync
// server in batches with retry and backoff. A WebSocket dashboard exposes
// live sync activity.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "goflow-syncd",
	Short: "GoFlow background sync daemon",
	Long: `goflow-syncd keeps local story edits flowing to the sync server.

Mutations recorded by the editor are queued on disk and delivered in
batches, surviving restarts and network outages. Each project syncs
independently so one stuck project never blocks another.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "goflow-sync.yaml", "path to the configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
