// Package schema provides data structures for queued sync operations.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// QueuedOperation represents a single buffered editor mutation awaiting
// delivery to the collaboration backend.
//
// The payload is opaque to the sync layer: it is a domain mutation
// descriptor (node moved, variable changed, choice edited, ...) that only
// the remote endpoint interprets. The sync layer guarantees delivery in
// enqueue order per project and removal only after remote acknowledgment.
type QueuedOperation struct {
	// ===== Identity & Provenance =====
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	DeviceID  string `json:"device_id"`

	// ===== Mutation Descriptor =====
	Type    string          `json:"type"` // e.g. node_update, variable_set, choice_add
	Payload json.RawMessage `json:"payload,omitempty"`

	// Optional anchors into the story graph the mutation touches.
	NodeID     string `json:"node_id,omitempty"`
	TimelineID string `json:"timeline_id,omitempty"`
	GraphID    string `json:"graph_id,omitempty"`

	// ===== Ordering =====
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Descriptor is the shape of a local mutation as the editor records it,
// before the sync layer stamps identity and provenance onto it.
type Descriptor struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	NodeID     string          `json:"node_id,omitempty"`
	TimelineID string          `json:"timeline_id,omitempty"`
	GraphID    string          `json:"graph_id,omitempty"`

	// ProjectID may be set by the editor when a spool file is written
	// outside a per-project directory.
	ProjectID string `json:"project_id,omitempty"`
}

// NewOperation stamps a mutation descriptor with a fresh unique ID,
// provenance, and enqueue timestamp.
func NewOperation(projectID, deviceID string, d Descriptor) *QueuedOperation {
	return &QueuedOperation{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		DeviceID:   deviceID,
		Type:       d.Type,
		Payload:    d.Payload,
		NodeID:     d.NodeID,
		TimelineID: d.TimelineID,
		GraphID:    d.GraphID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Validate checks if the QueuedOperation has valid field values.
func (o *QueuedOperation) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("id is required")
	}
	if o.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if o.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if o.Type == "" {
		return fmt.Errorf("type is required")
	}
	if o.EnqueuedAt.IsZero() {
		return fmt.Errorf("enqueued_at is required")
	}
	return nil
}

// Filename returns the canonical spool filename for this operation: {id}.json
func (o *QueuedOperation) Filename() string {
	return fmt.Sprintf("%s.json", o.ID)
}

// ReadDescriptorFile reads and parses a mutation descriptor from a spool file.
func ReadDescriptorFile(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor file: %w", err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor file %s: %w", filepath.Base(path), err)
	}

	if d.Type == "" {
		return nil, fmt.Errorf("descriptor file %s: type is required", filepath.Base(path))
	}

	return &d, nil
}

// WriteDescriptorFile writes a mutation descriptor to dir as a spool file.
// The write goes through a temp file and rename so watchers never observe
// a partially written descriptor.
func WriteDescriptorFile(dir, name string, d *Descriptor) (string, error) {
	if d.Type == "" {
		return "", fmt.Errorf("type is required")
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal descriptor: %w", err)
	}

	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write descriptor file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize descriptor file: %w", err)
	}

	return path, nil
}
