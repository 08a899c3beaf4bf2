package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/goflowspace/goflow-sync/internal/engine"
)

// Handler bridges engine events to dashboard broadcasts.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates an event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		logger: logger,
	}
}

// Attach subscribes the handler to an engine's events and returns the
// subscription id. Events are formatted and broadcast as they arrive;
// handlers must stay non-blocking, so Broadcast drops on backpressure.
func (h *Handler) Attach(e *engine.Engine) int {
	projectID := e.ProjectID()
	return e.Subscribe(func(ev engine.Event) {
		h.onEvent(projectID, ev)
	})
}

func (h *Handler) onEvent(projectID string, ev engine.Event) {
	switch ev := ev.(type) {
	case engine.StatusChanged:
		h.broadcast(MessageTypeStatusChange, projectID, StatusChangeData{
			Old: ev.Old,
			New: ev.New,
		})

	case engine.SyncStarted:
		h.broadcast(MessageTypeSyncStarted, projectID, nil)

	case engine.SyncCompleted:
		h.broadcast(MessageTypeSyncComplete, projectID, ev.Stats)

	case engine.SyncFailed:
		h.broadcast(MessageTypeSyncFailed, projectID, SyncFailedData{
			Error: ev.Err.Error(),
			Stats: ev.Stats,
		})

	case engine.BatchProcessed:
		rejected := make([]string, 0, len(ev.Result.Rejected))
		for _, rej := range ev.Result.Rejected {
			rejected = append(rejected, rej.ID)
		}
		h.broadcast(MessageTypeBatch, projectID, BatchData{
			Size:     len(ev.Batch),
			Accepted: len(ev.Result.Accepted),
			Rejected: rejected,
		})
	}
}

func (h *Handler) broadcast(typ MessageType, projectID string, data interface{}) {
	msg := Message{
		Type:      typ,
		ProjectID: projectID,
		Timestamp: time.Now(),
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			h.logger.Printf("Failed to marshal %s data: %v", typ, err)
			return
		}
		msg.Data = raw
	}

	h.server.Broadcast(msg)
}
