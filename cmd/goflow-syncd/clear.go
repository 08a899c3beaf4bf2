package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goflowspace/goflow-sync/internal/config"
	"github.com/goflowspace/goflow-sync/internal/queue"
	"github.com/goflowspace/goflow-sync/internal/ui"
)

var clearCmd = &cobra.Command{
	Use:   "clear [project...]",
	Short: "Drop queued operations",
	Long: `Drop queued operations that have not been delivered yet.

With no arguments every configured project is cleared. Dropped
operations are gone for good; the server never sees them. Stop the
daemon first so an in-flight batch does not race the clear.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		projects := args
		if len(projects) == 0 {
			projects = cfg.Projects
		}

		q, err := queue.Open(cfg.QueuePath())
		if err != nil {
			return fmt.Errorf("failed to open operation queue: %w", err)
		}
		defer q.Close()

		ctx := context.Background()
		total := 0
		for _, projectID := range projects {
			dropped, err := q.Clear(ctx, projectID)
			if err != nil {
				return fmt.Errorf("failed to clear %s: %w", projectID, err)
			}
			if dropped > 0 {
				fmt.Printf("%s %s: dropped %d operations\n", ui.RenderPass("✓"), projectID, dropped)
			} else {
				fmt.Printf("%s %s: queue already empty\n", ui.RenderMuted("·"), projectID)
			}
			total += dropped
		}

		fmt.Printf("\nDropped %d operations total\n", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
}
