// Package engine implements the background synchronization loop between
// the local operation queue and the remote collaboration backend.
//
// # Overview
//
// Editor mutations are buffered locally (see the queue package) and
// pushed to the backend in bounded batches on a timer. The engine owns
// the lifecycle state machine, the retry/backoff policy for failing
// batches, and the typed event stream the UI consumes.
//
//	Editor mutations
//	     └── Enqueue() ──→ queue (SQLite, source of truth)
//	                          │  drain up to BatchSize, oldest first
//	                          ▼
//	                       Engine ──→ Sender ──→ remote batch endpoint
//	                          │
//	                          └── events: statusChanged, syncStarted,
//	                              syncCompleted, syncFailed, batchProcessed
//
// # Lifecycle
//
// The engine moves between stopped, running, paused, syncing and error.
// Start schedules a recurring tick; each tick drains a batch, transmits
// it, and removes operations the server acknowledged. Transient failures
// (network, 5xx) retry the same batch with exponential backoff up to
// MaxRetries; exhaustion parks the engine in the error state until the
// next scheduled tick starts a fresh cycle. Operations the server
// permanently rejects are dropped with a recorded diagnostic so a single
// poison operation can never block its siblings.
//
// # Usage
//
//	q, err := queue.Open(".goflow/sync.db")
//	if err != nil {
//	    return err
//	}
//	defer q.Close()
//
//	eng := engine.New("proj-1", deviceID, q,
//	    transport.NewClient("https://sync.example.com"), nil, nil)
//	eng.Subscribe(func(ev engine.Event) {
//	    if sc, ok := ev.(engine.StatusChanged); ok {
//	        log.Printf("sync: %s -> %s", sc.Old, sc.New)
//	    }
//	})
//	eng.Start()
//	defer eng.Stop()
//
//	eng.Enqueue(schema.Descriptor{Type: "node_update", NodeID: "n1"})
//
// # Concurrency
//
// A single goroutine owns the tick loop, so at most one batch is in
// flight per project. Public methods are safe for concurrent use. Event
// handlers run on the loop goroutine and must not block or call back
// into the engine.
package engine
