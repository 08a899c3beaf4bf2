// Package spool ingests mutation descriptors that the editor process drops
// on disk and feeds them into the per-project sync queues.
//
// The spool directory holds one subdirectory per project; each descriptor
// is a single JSON file written atomically by the editor. Files placed at
// the spool root must carry their project id in the descriptor body. Once
// a descriptor is queued its file is removed; files that cannot be parsed
// are set aside with a .rejected suffix so they stop triggering events.
package spool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/goflowspace/goflow-sync/internal/schema"
)

// Sink receives descriptors recovered from the spool.
type Sink interface {
	// Enqueue records a mutation for the given project and returns the
	// assigned operation id.
	Enqueue(projectID string, d schema.Descriptor) (string, error)
}

// Config holds configuration for the spool watcher.
type Config struct {
	// DebounceInterval is how long a file must sit unchanged before it is
	// ingested. This lets slow writers finish before the file is read.
	DebounceInterval time.Duration

	// Logger for spool activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 100 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[spool] ", log.LstdFlags),
	}
}

// Watcher monitors the spool directory and forwards descriptors to a Sink.
type Watcher struct {
	root   string
	sink   Sink
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> last event time
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a spool watcher over the given directory.
func New(root string, sink Sink) (*Watcher, error) {
	return NewWithConfig(root, sink, DefaultConfig())
}

// NewWithConfig creates a spool watcher with custom configuration.
func NewWithConfig(root string, sink Sink, config *Config) (*Watcher, error) {
	if root == "" {
		return nil, fmt.Errorf("root cannot be empty")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		root:        root,
		sink:        sink,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins watching the spool.
//
// Descriptors already on disk are ingested first, so mutations recorded
// while the daemon was down are not lost. This blocks until ctx is
// cancelled or an error occurs.
func (w *Watcher) Start(ctx context.Context) error {
	w.config.Logger.Printf("Watching spool: %s", w.root)

	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("failed to watch spool root: %w", err)
	}

	// Pick up project directories and descriptors left from a previous run.
	if err := w.scanExisting(); err != nil {
		return fmt.Errorf("initial spool scan failed: %w", err)
	}

	w.wg.Add(2)
	go w.watchFileEvents()
	go w.processChangeQueue()

	select {
	case <-ctx.Done():
		return w.Stop()
	case <-w.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the watcher.
func (w *Watcher) Stop() error {
	w.cancel()

	if err := w.watcher.Close(); err != nil {
		w.config.Logger.Printf("Error closing watcher: %v", err)
	}

	w.wg.Wait()
	w.config.Logger.Println("Spool watcher stopped")
	return nil
}

// scanExisting walks the spool, watches every project directory, and
// queues descriptors that are already on disk.
func (w *Watcher) scanExisting() error {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		path := filepath.Join(w.root, entry.Name())

		if entry.IsDir() {
			if err := w.watchProjectDir(path); err != nil {
				return err
			}
			continue
		}

		if isDescriptor(path) {
			w.queueChange(path)
		}
	}
	return nil
}

// watchProjectDir registers a per-project directory and queues its
// descriptors.
func (w *Watcher) watchProjectDir(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch project directory %s: %w", dir, err)
	}
	w.config.Logger.Printf("Watching project directory: %s", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if !entry.IsDir() && isDescriptor(path) {
			w.queueChange(path)
		}
	}
	return nil
}

// watchFileEvents monitors filesystem events and queues descriptor files.
func (w *Watcher) watchFileEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					// A new project directory appeared under the root.
					if filepath.Dir(event.Name) == w.root {
						if err := w.watchProjectDir(event.Name); err != nil {
							w.config.Logger.Printf("Failed to watch new project directory: %v", err)
						}
					}
					continue
				}
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isDescriptor(event.Name) {
				continue
			}

			w.queueChange(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange records a file event with its timestamp for debouncing.
func (w *Watcher) queueChange(path string) {
	w.changeQueueMu.Lock()
	defer w.changeQueueMu.Unlock()

	w.changeQueue[path] = time.Now()
}

// processChangeQueue ingests debounced descriptor files.
func (w *Watcher) processChangeQueue() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.processPendingChanges()
		}
	}
}

// processPendingChanges ingests files that have sat unchanged for at least
// one debounce interval.
func (w *Watcher) processPendingChanges() {
	w.changeQueueMu.Lock()
	defer w.changeQueueMu.Unlock()

	now := time.Now()
	for path, queuedAt := range w.changeQueue {
		if now.Sub(queuedAt) < w.config.DebounceInterval {
			continue
		}
		delete(w.changeQueue, path)

		if err := w.ingestFile(path); err != nil {
			w.config.Logger.Printf("Error ingesting %s: %v", path, err)
		}
	}
}

// ingestFile reads one descriptor, hands it to the sink, and removes the
// file. Unparseable files are renamed aside; enqueue failures leave the
// file in place for a later retry.
func (w *Watcher) ingestFile(path string) error {
	d, err := schema.ReadDescriptorFile(path)
	if err != nil {
		// The file may be gone by the time the debounce fires.
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		w.rejectFile(path)
		return fmt.Errorf("failed to read descriptor: %w", err)
	}

	projectID := w.projectFor(path, d)
	if projectID == "" {
		w.rejectFile(path)
		return fmt.Errorf("descriptor %s has no project", path)
	}

	id, err := w.sink.Enqueue(projectID, *d)
	if err != nil {
		return fmt.Errorf("failed to enqueue descriptor: %w", err)
	}

	w.config.Logger.Printf("Ingested %s as operation %s", filepath.Base(path), id)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove ingested descriptor: %w", err)
	}
	return nil
}

// projectFor resolves the project id: the parent directory name, or the
// descriptor's own project field for files at the spool root.
func (w *Watcher) projectFor(path string, d *schema.Descriptor) string {
	dir := filepath.Dir(path)
	if dir != w.root {
		return filepath.Base(dir)
	}
	return d.ProjectID
}

// rejectFile renames a bad descriptor aside so it stops triggering events.
func (w *Watcher) rejectFile(path string) {
	if err := os.Rename(path, path+".rejected"); err != nil && !os.IsNotExist(err) {
		w.config.Logger.Printf("Failed to set aside %s: %v", path, err)
	}
}

func isDescriptor(path string) bool {
	return filepath.Ext(path) == ".json"
}
