package engine

import (
	"fmt"
	"sync"

	"github.com/goflowspace/goflow-sync/internal/schema"
)

// Registry tracks the engine instance for each open project.
//
// It is an explicit value owned by the host's composition root, with
// lifetime tied to project open/close, rather than a module-level
// singleton: callers pass it where it is needed.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]*Engine)}
}

// Add registers an engine under its project id.
// Fails if the project already has an engine.
func (r *Registry) Add(e *Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.engines[e.ProjectID()]; exists {
		return fmt.Errorf("engine already registered for project %s", e.ProjectID())
	}

	r.engines[e.ProjectID()] = e
	return nil
}

// Get returns the engine for a project, if one is registered.
func (r *Registry) Get(projectID string) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[projectID]
	return e, ok
}

// Remove stops and deregisters the engine for a project (project close).
// Unknown projects are ignored.
func (r *Registry) Remove(projectID string) {
	r.mu.Lock()
	e, ok := r.engines[projectID]
	delete(r.engines, projectID)
	r.mu.Unlock()

	if ok {
		e.Stop()
	}
}

// Projects returns the project ids with a registered engine.
func (r *Registry) Projects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	projects := make([]string, 0, len(r.engines))
	for p := range r.engines {
		projects = append(projects, p)
	}
	return projects
}

// Engines returns the registered engines.
func (r *Registry) Engines() []*Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	return engines
}

// Close stops every registered engine and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	r.engines = make(map[string]*Engine)
	r.mu.Unlock()

	for _, e := range engines {
		e.Stop()
	}
}

// Enqueue routes a mutation descriptor to the engine serving the given
// project and returns the assigned operation id.
func (r *Registry) Enqueue(projectID string, d schema.Descriptor) (string, error) {
	e, ok := r.Get(projectID)
	if !ok {
		return "", fmt.Errorf("no engine registered for project %s", projectID)
	}

	id := e.Enqueue(d)
	if id == "" {
		return "", fmt.Errorf("failed to enqueue operation for project %s", projectID)
	}
	return id, nil
}
