// Package transport sends operation batches to the remote collaboration
// backend and classifies failures for the sync engine.
//
// The remote endpoint accepts {device_id, operations} and answers with
// per-operation acceptance. Acceptance is idempotent server-side, keyed by
// operation id, so resending a batch whose response was lost is safe.
package transport

import (
	"errors"
	"fmt"
)

// BatchResult reports the remote endpoint's verdict on a transmitted batch.
type BatchResult struct {
	// Accepted lists operation ids the server durably applied.
	Accepted []string `json:"accepted"`

	// Rejected lists operations the server permanently refused. Retrying
	// these can never succeed; the engine drops them from the queue.
	Rejected []Rejection `json:"rejected,omitempty"`
}

// Rejection is a permanent per-operation refusal.
type Rejection struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// SendError is a failed transmission attempt. Transmission failures are
// transient by definition: the batch never got a verdict, so the engine
// retries it with backoff.
type SendError struct {
	// StatusCode is the HTTP status, or 0 when the request never
	// completed (connection refused, timeout).
	StatusCode int
	Err        error
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("send failed (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err represents a transient transmission
// failure that should be retried with backoff.
func IsRetryable(err error) bool {
	var se *SendError
	return errors.As(err, &se)
}
