package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/goflowspace/goflow-sync/internal/engine"
	"github.com/goflowspace/goflow-sync/internal/schema"
	"github.com/goflowspace/goflow-sync/internal/transport"
)

// nullStorage satisfies engine.Storage with an always-empty queue.
type nullStorage struct{}

func (nullStorage) Enqueue(ctx context.Context, op *schema.QueuedOperation) error {
	return nil
}

func (nullStorage) DrainPending(ctx context.Context, projectID string, limit int) ([]*schema.QueuedOperation, error) {
	return nil, nil
}

func (nullStorage) DeleteOperations(ctx context.Context, ids []string) error {
	return nil
}

func (nullStorage) Count(ctx context.Context, projectID string) (int, error) {
	return 0, nil
}

// nullSender accepts every batch.
type nullSender struct{}

func (nullSender) SendOperations(ctx context.Context, deviceID string, batch []*schema.QueuedOperation) (*transport.BatchResult, error) {
	accepted := make([]string, len(batch))
	for i, op := range batch {
		accepted[i] = op.ID
	}
	return &transport.BatchResult{Accepted: accepted}, nil
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", log.LstdFlags)
}

func startTestServer(t *testing.T, registry *engine.Registry) *Server {
	t.Helper()

	server := NewServer(registry, &Config{
		Port:   0, // random available port
		Logger: testLogger(),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Errorf("Failed to stop server: %v", err)
		}
	})

	time.Sleep(50 * time.Millisecond)
	return server
}

func newTestEngine(t *testing.T, projectID string) *engine.Engine {
	t.Helper()

	cfg := &engine.Config{
		BatchSize:    50,
		SyncInterval: time.Hour,
		MaxRetries:   1,
		RetryDelay:   time.Millisecond,
	}
	e := engine.New(projectID, "device-test", nullStorage{}, nullSender{}, cfg, testLogger())
	t.Cleanup(e.Stop)
	return e
}

func TestServerStartStop(t *testing.T) {
	server := startTestServer(t, engine.NewRegistry())

	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	server := startTestServer(t, engine.NewRegistry())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	server.Broadcast(Message{
		Type:      MessageTypeSyncStarted,
		ProjectID: "proj-1",
	})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeSyncStarted {
		t.Errorf("Expected type %s, got %s", MessageTypeSyncStarted, msg.Type)
	}
	if msg.ProjectID != "proj-1" {
		t.Errorf("Expected project proj-1, got %s", msg.ProjectID)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Broadcast should stamp the message")
	}
}

func TestHandlerFormatsEngineEvents(t *testing.T) {
	server := startTestServer(t, engine.NewRegistry())
	handler := NewHandler(server, testLogger())

	e := newTestEngine(t, "proj-1")
	handler.Attach(e)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Starting the engine emits a status change that should arrive as a
	// formatted dashboard message.
	e.Start()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read event message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeStatusChange {
		t.Fatalf("Expected type %s, got %s", MessageTypeStatusChange, msg.Type)
	}
	if msg.ProjectID != "proj-1" {
		t.Errorf("Expected project proj-1, got %s", msg.ProjectID)
	}

	var change StatusChangeData
	if err := json.Unmarshal(msg.Data, &change); err != nil {
		t.Fatalf("Failed to unmarshal status change: %v", err)
	}
	if change.Old != engine.StatusStopped || change.New != engine.StatusRunning {
		t.Errorf("Expected stopped->running, got %s->%s", change.Old, change.New)
	}
}

func TestHealthEndpoint(t *testing.T) {
	registry := engine.NewRegistry()
	if err := registry.Add(newTestEngine(t, "proj-1")); err != nil {
		t.Fatalf("Failed to add engine: %v", err)
	}
	server := startTestServer(t, registry)

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("Failed to GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
	if body["projects"] != float64(1) {
		t.Errorf("Expected 1 project, got %v", body["projects"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	registry := engine.NewRegistry()
	e := newTestEngine(t, "proj-1")
	if err := registry.Add(e); err != nil {
		t.Fatalf("Failed to add engine: %v", err)
	}
	e.Start()

	server := startTestServer(t, registry)

	resp, err := http.Get("http://" + server.GetAddr() + "/stats")
	if err != nil {
		t.Fatalf("Failed to GET /stats: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]projectStats
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode stats response: %v", err)
	}

	ps, ok := body["proj-1"]
	if !ok {
		t.Fatalf("Expected stats for proj-1, got %v", body)
	}
	if ps.Status != engine.StatusRunning {
		t.Errorf("Expected running, got %s", ps.Status)
	}
}
