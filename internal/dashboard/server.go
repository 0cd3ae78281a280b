// Package dashboard provides a real-time WebSocket view of the sync
// subsystem.
//
// The server broadcasts sync passes, queue statistics, and connectivity
// transitions to connected WebSocket clients, and serves a JSON
// snapshot for one-shot status queries.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/todosync/todosync/internal/netmon"
	"github.com/todosync/todosync/internal/queue"
	"github.com/todosync/todosync/internal/syncer"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeSyncState carries the orchestrator's status
	MessageTypeSyncState MessageType = "sync_state"

	// MessageTypeQueueStats carries offline queue statistics
	MessageTypeQueueStats MessageType = "queue_stats"

	// MessageTypeNetworkState carries a connectivity snapshot and verdict
	MessageTypeNetworkState MessageType = "network_state"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NetworkStateData pairs the raw connectivity state with the derived
// sync verdict.
type NetworkStateData struct {
	State netmon.State `json:"state"`
	Info  netmon.Info  `json:"info"`
}

// Snapshot is the one-shot view served at /status.
type Snapshot struct {
	Sync    *syncer.Status    `json:"sync,omitempty"`
	Queue   *queue.Stats      `json:"queue,omitempty"`
	Network *NetworkStateData `json:"network,omitempty"`
}

// Server manages WebSocket connections and broadcasts dashboard messages
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	// WebSocket client management
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// Message broadcasting
	broadcast chan Message

	// Latest-value cache for /status and client welcomes
	snapshot   Snapshot
	snapshotMu sync.RWMutex

	// Subscription teardown installed by Attach
	detach []func()

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Logging
	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8484)
	Port int

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8484,
		Logger: log.Default(),
	}
}

// NewServer creates a new dashboard WebSocket server
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      fmt.Sprintf(":%d", config.Port),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Attach subscribes the server to the sync subsystem so every state
// change is broadcast. Call before Start; Stop removes the
// subscriptions.
func (s *Server) Attach(sy *syncer.Syncer, q *queue.Queue, m *netmon.Monitor) {
	if sy != nil {
		s.detach = append(s.detach, sy.Subscribe(func(status syncer.Status) {
			s.snapshotMu.Lock()
			s.snapshot.Sync = &status
			s.snapshotMu.Unlock()
			s.publish(MessageTypeSyncState, status)
		}))
	}
	if q != nil {
		s.detach = append(s.detach, q.Subscribe(func(stats queue.Stats) {
			s.snapshotMu.Lock()
			s.snapshot.Queue = &stats
			s.snapshotMu.Unlock()
			s.publish(MessageTypeQueueStats, stats)
		}))
	}
	if m != nil {
		s.detach = append(s.detach, m.Subscribe(func(state netmon.State) {
			data := NetworkStateData{State: state, Info: netmon.DeriveInfo(state)}
			s.snapshotMu.Lock()
			s.snapshot.Network = &data
			s.snapshotMu.Unlock()
			s.publish(MessageTypeNetworkState, data)
		}))
	}
}

// publish marshals a payload and queues it for broadcast.
func (s *Server) publish(typ MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Printf("Failed to marshal %s payload: %v", typ, err)
		return
	}
	s.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: data})
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard server listening on %s", s.addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")

	for _, fn := range s.detach {
		fn()
	}
	s.detach = nil

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()

	s.logger.Println("Dashboard server stopped")
	return nil
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// broadcastLoop handles message broadcasting to all clients
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Send outside the read lock to avoid blocking broadcasts.
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // Allow all origins for development
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	// New clients get the latest known state of each feed so they don't
	// have to wait for the next change.
	s.sendWelcome(conn)

	go s.readLoop(conn)
}

// sendWelcome pushes the cached snapshot to one client.
func (s *Server) sendWelcome(conn *websocket.Conn) {
	s.snapshotMu.RLock()
	snap := s.snapshot
	s.snapshotMu.RUnlock()

	send := func(typ MessageType, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		msg, err := json.Marshal(Message{Type: typ, Timestamp: time.Now(), Data: data})
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = conn.Write(ctx, websocket.MessageText, msg)
		cancel()
	}

	if snap.Sync != nil {
		send(MessageTypeSyncState, snap.Sync)
	}
	if snap.Queue != nil {
		send(MessageTypeQueueStats, snap.Queue)
	}
	if snap.Network != nil {
		send(MessageTypeNetworkState, snap.Network)
	}
}

// readLoop keeps the WebSocket connection alive and handles client disconnects
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		_, _, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
		// Client messages are not processed, only drained.
	}
}

// removeClient safely removes a client connection
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleStatus serves the latest snapshot of all three feeds.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.snapshotMu.RLock()
	snap := s.snapshot
	s.snapshotMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	clientCount := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": clientCount,
	})
}

// handleRoot returns basic server information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>todosync Dashboard</title>
</head>
<body>
    <h1>todosync Dashboard Server</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Status snapshot: <a href="/status">/status</a></p>
    <p>Health check: <a href="/health">/health</a></p>
    <p>Connect a WebSocket client to receive sync, queue, and network updates.</p>
</body>
</html>`, r.Host)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
