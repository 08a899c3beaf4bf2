package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/goflowspace/goflow-sync/internal/config"
	"github.com/goflowspace/goflow-sync/internal/dashboard"
	"github.com/goflowspace/goflow-sync/internal/engine"
	"github.com/goflowspace/goflow-sync/internal/queue"
	"github.com/goflowspace/goflow-sync/internal/spool"
	"github.com/goflowspace/goflow-sync/internal/transport"
	"github.com/goflowspace/goflow-sync/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the sync daemon (foreground)",
	Long: `Start the sync daemon in the foreground.

The daemon will:
  1. Open the local operation queue
  2. Start a sync engine for each configured project
  3. Watch the spool directory for new mutation descriptors
  4. Serve the monitoring dashboard (if enabled)

Press Ctrl+C to stop; queued operations are kept for the next run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runDaemon(cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cfg *config.Config) error {
	logger := newLogger(cfg.Log)

	q, err := queue.Open(cfg.QueuePath())
	if err != nil {
		return fmt.Errorf("failed to open operation queue: %w", err)
	}
	defer q.Close()

	client := transport.NewClient(cfg.ServerURL, transport.WithLogger(logger))

	engineCfg := &engine.Config{
		BatchSize:         cfg.Sync.BatchSize,
		SyncInterval:      cfg.Sync.Interval,
		MaxRetries:        cfg.Sync.MaxRetries,
		RetryDelay:        cfg.Sync.RetryDelay,
		BackoffMultiplier: cfg.Sync.BackoffMultiplier,
		MaxRetryDelay:     cfg.Sync.MaxRetryDelay,
	}

	registry := engine.NewRegistry()
	defer registry.Close()

	var handler *dashboard.Handler
	if cfg.Dashboard.Enabled {
		server := dashboard.NewServer(registry, &dashboard.Config{
			Port:   cfg.Dashboard.Port,
			Logger: logger,
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		defer server.Stop()
		handler = dashboard.NewHandler(server, logger)
	}

	for _, projectID := range cfg.Projects {
		e := engine.New(projectID, cfg.DeviceID, q, client, engineCfg, logger)
		if handler != nil {
			handler.Attach(e)
		}
		if err := registry.Add(e); err != nil {
			return err
		}
		e.Start()
	}

	watcher, err := spool.NewWithConfig(cfg.SpoolDir, registry, &spool.Config{
		DebounceInterval: spool.DefaultConfig().DebounceInterval,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create spool watcher: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("%s goflow-syncd running\n", ui.RenderAccent("🔄"))
	fmt.Printf("   Device: %s\n", cfg.DeviceID)
	fmt.Printf("   Server: %s\n", cfg.ServerURL)
	fmt.Printf("   Projects: %d\n", len(cfg.Projects))
	fmt.Printf("   Spool: %s\n", cfg.SpoolDir)
	fmt.Printf("\nPress Ctrl+C to stop\n\n")

	// Blocks until the context is cancelled.
	return watcher.Start(ctx)
}

// newLogger builds the daemon logger, rotating through lumberjack when a
// log file is configured.
func newLogger(cfg config.LogConfig) *log.Logger {
	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}
	return log.New(out, "[goflow-syncd] ", log.LstdFlags)
}
