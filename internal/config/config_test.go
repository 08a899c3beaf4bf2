package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "goflow-sync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
device_id: device-1
server_url: https://sync.example.com
data_dir: /var/lib/goflow
projects:
  - proj-1
  - proj-2
sync:
  batch_size: 25
  interval: 10s
  max_retries: 5
dashboard:
  enabled: false
log:
  file: /var/log/goflow-sync.log
  max_size_mb: 20
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeviceID != "device-1" {
		t.Errorf("device_id: got %s", cfg.DeviceID)
	}
	if cfg.ServerURL != "https://sync.example.com" {
		t.Errorf("server_url: got %s", cfg.ServerURL)
	}
	if len(cfg.Projects) != 2 || cfg.Projects[0] != "proj-1" {
		t.Errorf("projects: got %v", cfg.Projects)
	}
	if cfg.Sync.BatchSize != 25 {
		t.Errorf("batch_size: got %d", cfg.Sync.BatchSize)
	}
	if cfg.Sync.Interval != 10*time.Second {
		t.Errorf("interval: got %v", cfg.Sync.Interval)
	}
	if cfg.Sync.MaxRetries != 5 {
		t.Errorf("max_retries: got %d", cfg.Sync.MaxRetries)
	}
	if cfg.Dashboard.Enabled {
		t.Error("dashboard should be disabled")
	}
	if cfg.Log.File != "/var/log/goflow-sync.log" || cfg.Log.MaxSizeMB != 20 {
		t.Errorf("log config: got %+v", cfg.Log)
	}

	if got := cfg.QueuePath(); got != filepath.Join("/var/lib/goflow", "queue.db") {
		t.Errorf("QueuePath: got %s", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfigFile(t, `
device_id: device-1
server_url: https://sync.example.com
projects: [proj-1]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Sync.BatchSize != 50 {
		t.Errorf("default batch_size: got %d", cfg.Sync.BatchSize)
	}
	if cfg.Sync.Interval != 5*time.Second {
		t.Errorf("default interval: got %v", cfg.Sync.Interval)
	}
	if cfg.Sync.MaxRetries != 3 {
		t.Errorf("default max_retries: got %d", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.RetryDelay != 2*time.Second {
		t.Errorf("default retry_delay: got %v", cfg.Sync.RetryDelay)
	}
	if cfg.Sync.BackoffMultiplier != 2.0 {
		t.Errorf("default backoff_multiplier: got %v", cfg.Sync.BackoffMultiplier)
	}
	if !cfg.Dashboard.Enabled || cfg.Dashboard.Port != 8335 {
		t.Errorf("default dashboard: got %+v", cfg.Dashboard)
	}
	if cfg.DataDir != "data" || cfg.SpoolDir != "spool" {
		t.Errorf("default dirs: got %s, %s", cfg.DataDir, cfg.SpoolDir)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("GOFLOW_SYNC_SERVER_URL", "https://env.example.com")

	path := writeConfigFile(t, `
device_id: device-1
server_url: https://file.example.com
projects: [proj-1]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.ServerURL != "https://env.example.com" {
		t.Errorf("environment should override the file, got %s", cfg.ServerURL)
	}
}

func TestEnvKeyAbsentFromFile(t *testing.T) {
	// The overriding key has no default and no file entry.
	t.Setenv("GOFLOW_SYNC_LOG_FILE", "/var/log/goflow.log")

	path := writeConfigFile(t, `
device_id: device-1
server_url: https://sync.example.com
projects: [proj-1]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Log.File != "/var/log/goflow.log" {
		t.Errorf("environment key absent from the file should apply, got %q", cfg.Log.File)
	}
}

func TestEnvOnlyConfiguration(t *testing.T) {
	// A daemon with no config file at all starts from the environment.
	t.Setenv("GOFLOW_SYNC_DEVICE_ID", "device-env")
	t.Setenv("GOFLOW_SYNC_SERVER_URL", "https://env.example.com")
	t.Setenv("GOFLOW_SYNC_PROJECTS", "proj-1,proj-2")
	t.Setenv("GOFLOW_SYNC_SYNC_INTERVAL", "7s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeviceID != "device-env" {
		t.Errorf("device_id: got %s", cfg.DeviceID)
	}
	if cfg.ServerURL != "https://env.example.com" {
		t.Errorf("server_url: got %s", cfg.ServerURL)
	}
	if len(cfg.Projects) != 2 || cfg.Projects[0] != "proj-1" || cfg.Projects[1] != "proj-2" {
		t.Errorf("projects: got %v", cfg.Projects)
	}
	if cfg.Sync.Interval != 7*time.Second {
		t.Errorf("interval: got %v", cfg.Sync.Interval)
	}
	// File-independent defaults still apply.
	if cfg.Sync.BatchSize != 50 {
		t.Errorf("default batch_size: got %d", cfg.Sync.BatchSize)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing device_id",
			content: `
server_url: https://sync.example.com
projects: [proj-1]
`,
		},
		{
			name: "missing server_url",
			content: `
device_id: device-1
projects: [proj-1]
`,
		},
		{
			name: "no projects",
			content: `
device_id: device-1
server_url: https://sync.example.com
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfigFile(t, tt.content)); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}
