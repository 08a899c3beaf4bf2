package schema

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func TestNewOperation(t *testing.T) {
	d := Descriptor{
		Type:    "node_update",
		Payload: json.RawMessage(`{"title":"Chapter 1"}`),
		NodeID:  "node-7",
	}

	op := NewOperation("proj-1", "device-a", d)

	if op.ID == "" {
		t.Fatal("expected generated ID")
	}
	if op.ProjectID != "proj-1" {
		t.Errorf("expected project proj-1, got %s", op.ProjectID)
	}
	if op.DeviceID != "device-a" {
		t.Errorf("expected device device-a, got %s", op.DeviceID)
	}
	if op.Type != "node_update" {
		t.Errorf("expected type node_update, got %s", op.Type)
	}
	if op.NodeID != "node-7" {
		t.Errorf("expected node node-7, got %s", op.NodeID)
	}
	if op.EnqueuedAt.IsZero() {
		t.Error("expected enqueued_at to be set")
	}

	if err := op.Validate(); err != nil {
		t.Errorf("new operation should validate: %v", err)
	}
}

func TestNewOperationUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		op := NewOperation("proj-1", "device-a", Descriptor{Type: "variable_set"})
		if seen[op.ID] {
			t.Fatalf("duplicate operation ID: %s", op.ID)
		}
		seen[op.ID] = true
	}
}

func TestValidate(t *testing.T) {
	valid := QueuedOperation{
		ID:         "op-1",
		ProjectID:  "proj-1",
		DeviceID:   "device-a",
		Type:       "node_update",
		EnqueuedAt: time.Now(),
	}

	tests := []struct {
		name    string
		mutate  func(*QueuedOperation)
		wantErr bool
	}{
		{"valid", func(o *QueuedOperation) {}, false},
		{"missing id", func(o *QueuedOperation) { o.ID = "" }, true},
		{"missing project", func(o *QueuedOperation) { o.ProjectID = "" }, true},
		{"missing device", func(o *QueuedOperation) { o.DeviceID = "" }, true},
		{"missing type", func(o *QueuedOperation) { o.Type = "" }, true},
		{"zero enqueued_at", func(o *QueuedOperation) { o.EnqueuedAt = time.Time{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := valid
			tt.mutate(&op)
			err := op.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestDescriptorFileRoundTrip(t *testing.T) {
	dir := t.TempDir()

	d := &Descriptor{
		Type:      "choice_add",
		Payload:   json.RawMessage(`{"text":"Open the door"}`),
		NodeID:    "node-3",
		ProjectID: "proj-9",
	}

	path, err := WriteDescriptorFile(dir, "op-test.json", d)
	if err != nil {
		t.Fatalf("WriteDescriptorFile failed: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("expected file in %s, got %s", dir, path)
	}

	got, err := ReadDescriptorFile(path)
	if err != nil {
		t.Fatalf("ReadDescriptorFile failed: %v", err)
	}

	if got.Type != d.Type {
		t.Errorf("expected type %s, got %s", d.Type, got.Type)
	}
	if got.NodeID != d.NodeID {
		t.Errorf("expected node %s, got %s", d.NodeID, got.NodeID)
	}
	if got.ProjectID != d.ProjectID {
		t.Errorf("expected project %s, got %s", d.ProjectID, got.ProjectID)
	}
	if string(got.Payload) != string(d.Payload) {
		t.Errorf("payload mismatch: %s vs %s", got.Payload, d.Payload)
	}
}

func TestReadDescriptorFileInvalid(t *testing.T) {
	dir := t.TempDir()

	if _, err := ReadDescriptorFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	if _, err := WriteDescriptorFile(dir, "bad.json", &Descriptor{}); err == nil {
		t.Error("expected error writing descriptor without type")
	}
}
