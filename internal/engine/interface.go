package engine

import (
	"context"

	"github.com/goflowspace/goflow-sync/internal/schema"
	"github.com/goflowspace/goflow-sync/internal/transport"
)

// Storage is the persistent operation queue the engine drains.
//
// The storage is the single source of truth for what is pending. The
// engine re-drains it every tick and never keeps an independent in-memory
// copy of the queue across ticks, so memory and storage cannot diverge
// after a crash or restart.
type Storage interface {
	// Enqueue appends an operation. Must never touch the network; fails
	// only on invalid input or local storage exhaustion
	// (queue.ErrStorageFull).
	Enqueue(ctx context.Context, op *schema.QueuedOperation) error

	// DrainPending returns up to limit oldest-first operations for the
	// project without removing them. Removal is explicit, after remote
	// acknowledgment.
	DrainPending(ctx context.Context, projectID string, limit int) ([]*schema.QueuedOperation, error)

	// DeleteOperations removes operations by id. Idempotent: deleting an
	// already-absent id is not an error.
	DeleteOperations(ctx context.Context, ids []string) error

	// Count returns the number of pending operations for the project,
	// reflecting all earlier Enqueue/DeleteOperations calls.
	Count(ctx context.Context, projectID string) (int, error)
}

// Sender transmits a batch of operations to the remote endpoint.
//
// Implementations must be safe to call again with the same batch: the
// engine resends after a timeout whose response was lost, and relies on
// server-side idempotency keyed by operation id.
type Sender interface {
	// SendOperations returns the per-operation verdict, or an error.
	// Errors for which transport.IsRetryable reports true are transient
	// and retried with backoff; anything else is treated as fatal.
	SendOperations(ctx context.Context, deviceID string, batch []*schema.QueuedOperation) (*transport.BatchResult, error)
}
