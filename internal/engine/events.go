package engine

import (
	"sync"

	"github.com/goflowspace/goflow-sync/internal/schema"
	"github.com/goflowspace/goflow-sync/internal/transport"
)

// Event is the closed set of notifications the engine emits. Consumers
// switch on the concrete type; adding a variant is a compile-time-visible
// change rather than a new magic string.
type Event interface {
	event()
}

// SyncStarted is emitted when a batch cycle begins.
type SyncStarted struct{}

// SyncCompleted is emitted after a batch completes without a transient
// failure (per-operation rejections included).
type SyncCompleted struct {
	Stats Stats
}

// SyncFailed is emitted when a cycle ends in a terminal failure: retries
// exhausted, or a fatal local storage error.
type SyncFailed struct {
	Err   error
	Stats Stats
}

// BatchProcessed carries the remote verdict for a transmitted batch,
// including any per-operation rejections.
type BatchProcessed struct {
	Batch  []*schema.QueuedOperation
	Result transport.BatchResult
}

// StatusChanged is emitted on every engine state transition.
type StatusChanged struct {
	Old Status
	New Status
}

func (SyncStarted) event()    {}
func (SyncCompleted) event()  {}
func (SyncFailed) event()     {}
func (BatchProcessed) event() {}
func (StatusChanged) event()  {}

// Handler receives engine events.
//
// Handlers are invoked synchronously from the engine goroutine: they must
// return promptly and must not call back into the engine.
type Handler func(Event)

// emitter fans events out to subscribed handlers.
type emitter struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	next     int
}

func newEmitter() *emitter {
	return &emitter{handlers: make(map[int]Handler)}
}

// subscribe registers a handler and returns its subscription id.
func (em *emitter) subscribe(h Handler) int {
	em.mu.Lock()
	defer em.mu.Unlock()

	em.next++
	em.handlers[em.next] = h
	return em.next
}

// unsubscribe removes a handler. Unknown ids are ignored.
func (em *emitter) unsubscribe(id int) {
	em.mu.Lock()
	defer em.mu.Unlock()
	delete(em.handlers, id)
}

// emit dispatches ev to all handlers. Safe to call with a nil event.
func (em *emitter) emit(ev Event) {
	if ev == nil {
		return
	}

	em.mu.RLock()
	handlers := make([]Handler, 0, len(em.handlers))
	for _, h := range em.handlers {
		handlers = append(handlers, h)
	}
	em.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
