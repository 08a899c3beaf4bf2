package engine

import "time"

// Stats are process-local sync counters for one project's engine. They are
// not persisted; a restart begins a fresh session.
type Stats struct {
	// Monotonic within a session.
	TotalOperationsProcessed int `json:"total_operations_processed"`
	SuccessfulSyncs          int `json:"successful_syncs"`
	FailedSyncs              int `json:"failed_syncs"`

	// Last-observed snapshot, nil/empty until the first event.
	LastSyncTime  *time.Time `json:"last_sync_time,omitempty"`
	LastErrorTime *time.Time `json:"last_error_time,omitempty"`
	LastError     string     `json:"last_error,omitempty"`

	// CurrentRetryCount resets to 0 on any batch that completes without a
	// transient failure.
	CurrentRetryCount int `json:"current_retry_count"`

	// PendingOperations is derived from storage, never tracked
	// independently.
	PendingOperations int `json:"pending_operations"`
}
