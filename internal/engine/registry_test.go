package engine

import (
	"log"
	"os"
	"sort"
	"testing"
	"time"
)

func newRegistryEngine(t *testing.T, projectID string) *Engine {
	t.Helper()

	cfg := &Config{
		BatchSize:         50,
		SyncInterval:      time.Hour,
		MaxRetries:        1,
		RetryDelay:        time.Millisecond,
		BackoffMultiplier: 2,
	}
	logger := log.New(os.Stderr, "[registry-test] ", 0)
	return New(projectID, "device-test", &fakeStorage{}, &fakeSender{}, cfg, logger)
}

func TestRegistryAddGet(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	e := newRegistryEngine(t, "proj-a")
	if err := r.Add(e); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, ok := r.Get("proj-a")
	if !ok || got != e {
		t.Errorf("Get returned %v, %v; want the registered engine", got, ok)
	}
	if _, ok := r.Get("proj-missing"); ok {
		t.Error("Get should miss for an unknown project")
	}
}

func TestRegistryDuplicateAdd(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	if err := r.Add(newRegistryEngine(t, "proj-a")); err != nil {
		t.Fatalf("first Add failed: %v", err)
	}
	if err := r.Add(newRegistryEngine(t, "proj-a")); err == nil {
		t.Error("second Add for the same project should fail")
	}
}

func TestRegistryRemoveStopsEngine(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	e := newRegistryEngine(t, "proj-a")
	if err := r.Add(e); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	e.Start()

	r.Remove("proj-a")

	if e.Status() != StatusStopped {
		t.Errorf("removed engine should be stopped, got %s", e.Status())
	}
	if _, ok := r.Get("proj-a"); ok {
		t.Error("engine should be gone after Remove")
	}

	// Removing an unknown project is a no-op.
	r.Remove("proj-missing")
}

func TestRegistryProjects(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	for _, p := range []string{"proj-c", "proj-a", "proj-b"} {
		if err := r.Add(newRegistryEngine(t, p)); err != nil {
			t.Fatalf("Add %s failed: %v", p, err)
		}
	}

	got := r.Projects()
	sort.Strings(got)
	want := []string{"proj-a", "proj-b", "proj-c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
			break
		}
	}

	if engines := r.Engines(); len(engines) != 3 {
		t.Errorf("expected 3 engines, got %d", len(engines))
	}
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry()

	engines := make([]*Engine, 3)
	for i, p := range []string{"proj-a", "proj-b", "proj-c"} {
		engines[i] = newRegistryEngine(t, p)
		if err := r.Add(engines[i]); err != nil {
			t.Fatalf("Add %s failed: %v", p, err)
		}
		engines[i].Start()
	}

	r.Close()

	for _, e := range engines {
		if e.Status() != StatusStopped {
			t.Errorf("engine %s should be stopped after Close, got %s", e.ProjectID(), e.Status())
		}
	}
	if got := r.Projects(); len(got) != 0 {
		t.Errorf("registry should be empty after Close, got %v", got)
	}
}
