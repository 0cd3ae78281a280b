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

	"github.com/todosync/todosync/internal/netmon"
	"github.com/todosync/todosync/internal/queue"
	"github.com/todosync/todosync/internal/task"
)

func testConfig() *Config {
	return &Config{
		Port:   0, // Use random available port
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(testConfig())

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	server := NewServer(testConfig())

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	payload, _ := json.Marshal(NetworkStateData{
		State: netmon.State{Online: true, EffectiveType: "4g"},
	})
	server.Broadcast(Message{Type: MessageTypeNetworkState, Data: payload})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeNetworkState {
		t.Errorf("Expected %s message, got %s", MessageTypeNetworkState, msg.Type)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Expected broadcast timestamp to be stamped")
	}
}

func TestAttachBroadcastsQueueStats(t *testing.T) {
	server := NewServer(testConfig())

	q, err := queue.New(&queue.Config{Logger: log.New(os.Stderr, "[test] ", 0)})
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	defer q.Close()

	server.Attach(nil, q, nil)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The welcome replay carries the stats captured at Attach time.
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal welcome: %v", err)
	}
	if msg.Type != MessageTypeQueueStats {
		t.Fatalf("Expected queue stats welcome, got %s", msg.Type)
	}

	// A queue mutation is broadcast live.
	if _, err := q.EnqueueCreate("user-1", task.Task{Title: "Buy milk"}); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read stats broadcast: %v", err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal broadcast: %v", err)
	}
	if msg.Type != MessageTypeQueueStats {
		t.Fatalf("Expected queue stats broadcast, got %s", msg.Type)
	}

	var stats queue.Stats
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats payload: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("Expected 1 queued action in broadcast, got %d", stats.Total)
	}
}

func TestStatusEndpoint(t *testing.T) {
	server := NewServer(testConfig())

	q, err := queue.New(&queue.Config{Logger: log.New(os.Stderr, "[test] ", 0)})
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	defer q.Close()

	server.Attach(nil, q, nil)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://" + server.GetAddr() + "/status")
	if err != nil {
		t.Fatalf("Failed to fetch status: %v", err)
	}
	defer resp.Body.Close()

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if snap.Queue == nil {
		t.Fatal("Expected queue stats in status snapshot")
	}
	if snap.Queue.Total != 0 {
		t.Errorf("Expected empty queue, got %d", snap.Queue.Total)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(testConfig())

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("Failed to fetch health: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected ok status, got %v", body["status"])
	}
}
