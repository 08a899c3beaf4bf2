package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/goflowspace/goflow-sync/internal/config"
	"github.com/goflowspace/goflow-sync/internal/engine"
	"github.com/goflowspace/goflow-sync/internal/queue"
	"github.com/goflowspace/goflow-sync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status for every project",
	Long: `Display sync status for each configured project.

When the daemon is running and the dashboard is enabled, live engine
state is fetched from it. Otherwise the local queue database is read
directly, which shows pending counts only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		if cfg.Dashboard.Enabled && printLiveStatus(cfg) {
			return nil
		}
		return printQueueStatus(cfg)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// liveStats mirrors the dashboard /stats payload.
type liveStats struct {
	Status engine.Status `json:"status"`
	Stats  engine.Stats  `json:"stats"`
}

// printLiveStatus fetches engine state from a running daemon. Returns
// false if the daemon is not reachable.
func printLiveStatus(cfg *config.Config) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/stats", cfg.Dashboard.Port))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var stats map[string]liveStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return false
	}

	fmt.Printf("\n%s Sync Status (live)\n\n", ui.RenderAccent("📊"))
	for _, projectID := range cfg.Projects {
		ps, ok := stats[projectID]
		if !ok {
			fmt.Printf("%s  %s\n", projectID, ui.RenderMuted("not managed by daemon"))
			continue
		}

		fmt.Printf("%s  %s\n", projectID, ui.RenderStatus(string(ps.Status)))
		fmt.Printf("   Pending: %d\n", ps.Stats.PendingOperations)
		fmt.Printf("   Synced: %d operations in %d cycles\n",
			ps.Stats.TotalOperationsProcessed, ps.Stats.SuccessfulSyncs)
		if ps.Stats.LastSyncTime != nil {
			fmt.Printf("   Last sync: %s\n", ps.Stats.LastSyncTime.Format("2006-01-02 15:04:05"))
		}
		if ps.Stats.LastError != "" {
			fmt.Printf("   Last error: %s\n", ui.RenderFail(ps.Stats.LastError))
		}
	}
	fmt.Println()
	return true
}

// printQueueStatus reads pending counts straight from the queue database.
func printQueueStatus(cfg *config.Config) error {
	if _, err := os.Stat(cfg.QueuePath()); os.IsNotExist(err) {
		fmt.Printf("\n%s No operation queue at %s\n", ui.RenderWarn("⚠"), cfg.QueuePath())
		fmt.Printf("   Run 'goflow-syncd run' to start syncing\n\n")
		return nil
	}

	q, err := queue.Open(cfg.QueuePath())
	if err != nil {
		return fmt.Errorf("failed to open operation queue: %w", err)
	}
	defer q.Close()

	ctx := context.Background()

	fmt.Printf("\n%s Sync Status (queue only, daemon not reachable)\n\n", ui.RenderAccent("📊"))
	for _, projectID := range cfg.Projects {
		pending, err := q.Count(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to count operations for %s: %w", projectID, err)
		}

		marker := ui.RenderPass("✓")
		if pending > 0 {
			marker = ui.RenderWarn("⚠")
		}
		fmt.Printf("%s %s  %d pending\n", marker, projectID, pending)
	}
	fmt.Println()
	return nil
}
