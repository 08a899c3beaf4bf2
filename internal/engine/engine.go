package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/goflowspace/goflow-sync/internal/backoff"
	"github.com/goflowspace/goflow-sync/internal/queue"
	"github.com/goflowspace/goflow-sync/internal/schema"
	"github.com/goflowspace/goflow-sync/internal/transport"
)

// Status is the engine lifecycle state. The engine is its sole mutator;
// everything else reads it through Status() or StatusChanged events.
type Status string

const (
	// StatusStopped is the initial and terminal state.
	StatusStopped Status = "stopped"
	// StatusRunning means the periodic tick is scheduled.
	StatusRunning Status = "running"
	// StatusPaused suppresses ticks while preserving the queue.
	StatusPaused Status = "paused"
	// StatusSyncing is the transient state while a batch (including its
	// retry waits) is in flight.
	StatusSyncing Status = "syncing"
	// StatusError is entered on a terminal cycle failure; the next
	// scheduled tick or an explicit Resume returns to running.
	StatusError Status = "error"
)

// Engine owns the sync lifecycle for a single project: the timer-driven
// batch loop, retry/backoff of failing batches, poison-operation
// isolation, and event emission.
//
// At most one batch is in flight per project at any time: a single
// goroutine owns the loop, and all ticks (scheduled or forced) run on it.
type Engine struct {
	projectID string
	deviceID  string
	storage   Storage
	sender    Sender
	cfg       *Config
	logger    *log.Logger
	emitter   *emitter

	mu     sync.Mutex
	status Status
	// errorResume is the state to restore when leaving StatusError, so a
	// failure during a forced cycle does not undo an earlier Pause.
	errorResume Status
	stats       Stats
	ctx    context.Context
	cancel context.CancelFunc
	kick   chan syncRequest
	wg     sync.WaitGroup
}

// syncRequest asks the loop goroutine for an out-of-band tick.
type syncRequest struct {
	forced bool
	reply  chan bool
}

// New creates an engine for one project.
//
// The storage and sender must be constructed by the caller; the engine
// never probes their capabilities at runtime. If cfg is nil, defaults are
// used. If logger is nil, a default logger writing to stderr is used.
func New(projectID, deviceID string, storage Storage, sender Sender, cfg *Config, logger *log.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}

	return &Engine{
		projectID: projectID,
		deviceID:  deviceID,
		storage:   storage,
		sender:    sender,
		cfg:       cfg.normalized(),
		logger:    logger,
		emitter:   newEmitter(),
		status:    StatusStopped,
	}
}

// ProjectID returns the project this engine serves.
func (e *Engine) ProjectID() string {
	return e.projectID
}

// Subscribe registers an event handler and returns its subscription id.
func (e *Engine) Subscribe(h Handler) int {
	return e.emitter.subscribe(h)
}

// Unsubscribe removes a previously registered handler.
func (e *Engine) Unsubscribe(id int) {
	e.emitter.unsubscribe(id)
}

// Status returns the current lifecycle state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Stats returns a snapshot of the sync counters, with PendingOperations
// recomputed from storage.
func (e *Engine) Stats() Stats {
	pending, err := e.storage.Count(context.Background(), e.projectID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		e.stats.PendingOperations = pending
	}
	return e.stats
}

// Start schedules the recurring sync tick. No-op if already started.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.status != StatusStopped {
		e.mu.Unlock()
		return
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.kick = make(chan syncRequest, 1)
	ev := e.setStatusLocked(StatusRunning)
	e.wg.Add(1)
	e.mu.Unlock()

	e.emitter.emit(ev)
	e.logger.Printf("Engine started for project %s", e.projectID)
	go e.run()
}

// Stop cancels the tick loop. Queued operations are kept; a response to an
// in-flight batch arriving after Stop is discarded rather than mutating a
// stopped engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.status == StatusStopped {
		e.mu.Unlock()
		return
	}

	e.cancel()
	ev := e.setStatusLocked(StatusStopped)
	e.mu.Unlock()

	e.emitter.emit(ev)
	e.wg.Wait()
	e.logger.Printf("Engine stopped for project %s", e.projectID)
}

// Pause suppresses scheduled ticks. The queue and timers are preserved.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.status != StatusRunning {
		e.mu.Unlock()
		return
	}
	ev := e.setStatusLocked(StatusPaused)
	e.mu.Unlock()

	e.emitter.emit(ev)
	e.logger.Printf("Engine paused for project %s", e.projectID)
}

// Resume re-enables ticking after Pause (or clears an error state) and
// triggers a tick immediately instead of waiting out the interval.
func (e *Engine) Resume() {
	e.mu.Lock()
	if e.status != StatusPaused && e.status != StatusError {
		e.mu.Unlock()
		return
	}
	e.stats.CurrentRetryCount = 0
	e.errorResume = StatusRunning // an explicit resume overrides a prior pause
	ev := e.setStatusLocked(StatusRunning)
	kick := e.kick
	e.mu.Unlock()

	e.emitter.emit(ev)
	e.logger.Printf("Engine resumed for project %s", e.projectID)

	// Nudge the loop; if a tick request is already queued that one serves.
	select {
	case kick <- syncRequest{}:
	default:
	}
}

// ForceSync triggers one tick out-of-band and reports whether the
// resulting batch completed without a transient failure. Returns false
// immediately if the engine is stopped.
func (e *Engine) ForceSync() bool {
	e.mu.Lock()
	if e.status == StatusStopped {
		e.mu.Unlock()
		return false
	}
	ctx := e.ctx
	kick := e.kick
	e.mu.Unlock()

	req := syncRequest{forced: true, reply: make(chan bool, 1)}
	select {
	case kick <- req:
	case <-ctx.Done():
		return false
	}

	select {
	case ok := <-req.reply:
		return ok
	case <-ctx.Done():
		return false
	}
}

// Enqueue records a local mutation for eventual delivery and returns the
// assigned operation id.
//
// Storage exhaustion is surfaced as a SyncFailed event and an error-state
// transition rather than an error return: there is nothing a mutation
// call site can do about a full disk, but the operator must learn of the
// data-loss risk immediately.
func (e *Engine) Enqueue(d schema.Descriptor) string {
	op := schema.NewOperation(e.projectID, e.deviceID, d)

	if err := e.storage.Enqueue(context.Background(), op); err != nil {
		if errors.Is(err, queue.ErrStorageFull) {
			e.logger.Printf("FATAL: queue storage full for project %s: %v", e.projectID, err)
		} else {
			e.logger.Printf("Failed to enqueue operation for project %s: %v", e.projectID, err)
		}
		e.failOutOfBand(err)
		return ""
	}

	return op.ID
}

// run is the loop goroutine. It is the only place ticks execute, which
// gives at most one batch in flight per project.
func (e *Engine) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return

		case <-ticker.C:
			e.tick(false)

		case req := <-e.kick:
			ok := e.tick(req.forced)
			if req.reply != nil {
				req.reply <- ok
			}
		}
	}
}

// tick runs one batch cycle. Returns whether the cycle completed without a
// transient failure.
func (e *Engine) tick(forced bool) bool {
	e.mu.Lock()
	resumeTo := StatusRunning

	switch e.status {
	case StatusStopped, StatusSyncing:
		e.mu.Unlock()
		return false

	case StatusPaused:
		if !forced {
			e.mu.Unlock()
			return false
		}
		// An explicit ForceSync during pause runs one cycle and then
		// returns to the paused state.
		resumeTo = StatusPaused

	case StatusError:
		// The next cycle after a terminal failure starts fresh.
		e.stats.CurrentRetryCount = 0
		if e.errorResume == StatusPaused {
			if !forced {
				// The engine was paused when the failed forced cycle ran;
				// restore the pause instead of resuming ticking.
				ev := e.setStatusLocked(StatusPaused)
				e.mu.Unlock()
				e.emitter.emit(ev)
				return false
			}
			resumeTo = StatusPaused
		}
	}

	started := e.setStatusLocked(StatusSyncing)
	e.mu.Unlock()

	e.emitter.emit(started)
	e.emitter.emit(SyncStarted{})

	ops, err := e.storage.DrainPending(e.ctx, e.projectID, e.cfg.BatchSize)
	if err != nil {
		return e.finishFailed(fmt.Errorf("failed to drain queue: %w", err), resumeTo)
	}

	if len(ops) == 0 {
		return e.finishIdle(resumeTo)
	}

	return e.transmit(ops, resumeTo)
}

// transmit sends one batch, retrying transient failures with backoff.
func (e *Engine) transmit(ops []*schema.QueuedOperation, resumeTo Status) bool {
	attempt := 0

	for {
		result, err := e.sender.SendOperations(e.ctx, e.deviceID, ops)

		// A response that races Stop is discarded.
		if e.ctx.Err() != nil {
			return false
		}

		if err == nil {
			return e.finishCompleted(ops, result, resumeTo)
		}

		if !transport.IsRetryable(err) {
			return e.finishFailed(err, resumeTo)
		}

		attempt++
		e.mu.Lock()
		e.stats.CurrentRetryCount = attempt
		e.mu.Unlock()

		if attempt > e.cfg.MaxRetries {
			return e.finishFailed(fmt.Errorf("batch failed after %d attempts: %w", attempt, err), resumeTo)
		}

		delay := backoff.Delay(attempt, e.cfg.RetryDelay, e.cfg.BackoffMultiplier, e.cfg.MaxRetryDelay)
		e.logger.Printf("Batch for project %s failed (attempt %d/%d), retrying in %v: %v",
			e.projectID, attempt, e.cfg.MaxRetries, delay, err)

		select {
		case <-e.ctx.Done():
			return false
		case <-time.After(delay):
		}
	}
}

// finishIdle ends a cycle that found nothing to send.
func (e *Engine) finishIdle(resumeTo Status) bool {
	e.mu.Lock()
	if e.status == StatusStopped {
		e.mu.Unlock()
		return false
	}
	e.stats.PendingOperations = 0
	ev := e.setStatusLocked(resumeTo)
	e.mu.Unlock()

	e.emitter.emit(ev)
	return true
}

// finishCompleted applies a batch verdict: acknowledged and permanently
// rejected operations leave the queue, counters update, and the retry
// counter resets because the batch completed without a transient failure.
func (e *Engine) finishCompleted(ops []*schema.QueuedOperation, result *transport.BatchResult, resumeTo Status) bool {
	remove := make([]string, 0, len(result.Accepted)+len(result.Rejected))
	remove = append(remove, result.Accepted...)
	for _, rej := range result.Rejected {
		remove = append(remove, rej.ID)
		e.logger.Printf("Operation %s permanently rejected: %s", rej.ID, rej.Reason)
	}

	if err := e.storage.DeleteOperations(e.ctx, remove); err != nil {
		return e.finishFailed(fmt.Errorf("failed to remove acknowledged operations: %w", err), resumeTo)
	}

	pending, countErr := e.storage.Count(e.ctx, e.projectID)

	e.mu.Lock()
	if e.status == StatusStopped {
		e.mu.Unlock()
		return false
	}
	e.stats.TotalOperationsProcessed += len(remove)
	e.stats.SuccessfulSyncs++
	e.stats.CurrentRetryCount = 0
	now := time.Now()
	e.stats.LastSyncTime = &now
	if countErr == nil {
		e.stats.PendingOperations = pending
	}
	snapshot := e.stats
	ev := e.setStatusLocked(resumeTo)
	e.mu.Unlock()

	e.emitter.emit(BatchProcessed{Batch: ops, Result: *result})
	e.emitter.emit(SyncCompleted{Stats: snapshot})
	e.emitter.emit(ev)
	return true
}

// finishFailed ends a cycle in the error state. The batch stays queued;
// the next scheduled tick leaves the error state (back to resumeTo) and
// re-drains it with the retry counter reset.
func (e *Engine) finishFailed(err error, resumeTo Status) bool {
	e.mu.Lock()
	if e.status == StatusStopped {
		e.mu.Unlock()
		return false
	}
	e.stats.FailedSyncs++
	e.stats.LastError = err.Error()
	now := time.Now()
	e.stats.LastErrorTime = &now
	snapshot := e.stats
	e.errorResume = resumeTo
	ev := e.setStatusLocked(StatusError)
	e.mu.Unlock()

	e.logger.Printf("Sync failed for project %s: %v", e.projectID, err)
	e.emitter.emit(ev)
	e.emitter.emit(SyncFailed{Err: err, Stats: snapshot})
	return false
}

// failOutOfBand records a failure raised outside the tick loop (enqueue
// on a full disk). A stopped engine only logs.
func (e *Engine) failOutOfBand(err error) {
	e.mu.Lock()
	if e.status == StatusStopped {
		e.mu.Unlock()
		return
	}
	e.stats.FailedSyncs++
	e.stats.LastError = err.Error()
	now := time.Now()
	e.stats.LastErrorTime = &now
	snapshot := e.stats
	if e.status == StatusPaused {
		e.errorResume = StatusPaused
	} else {
		e.errorResume = StatusRunning
	}
	ev := e.setStatusLocked(StatusError)
	e.mu.Unlock()

	e.emitter.emit(ev)
	e.emitter.emit(SyncFailed{Err: err, Stats: snapshot})
}

// setStatusLocked transitions the state and returns the event to emit
// after the lock is released, or nil if the state did not change.
// Must be called with e.mu held.
func (e *Engine) setStatusLocked(next Status) Event {
	if e.status == next {
		return nil
	}
	old := e.status
	e.status = next
	return StatusChanged{Old: old, New: next}
}
