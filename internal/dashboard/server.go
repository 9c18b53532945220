// Package dashboard provides a real-time WebSocket feed of sync and backup
// activity.
//
// The desktop UI (or any observer) connects to the /ws endpoint and
// receives push results, applied pulls, and backup events as they happen.
// The feed is advisory only - dropping a message never affects the journal
// or the store.
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
)

// EventType classifies a dashboard event.
type EventType string

const (
	// EventPushComplete reports the outcome of one push invocation.
	EventPushComplete EventType = "push_complete"

	// EventPullApplied reports remote changes applied locally.
	EventPullApplied EventType = "pull_applied"

	// EventBackupCreated reports a new backup artifact.
	EventBackupCreated EventType = "backup_created"

	// EventJournalStats reports pending/total journal counts.
	EventJournalStats EventType = "journal_stats"
)

// Event is one dashboard broadcast message.
type Event struct {
	Type      EventType       `json:"type"`
	TenantID  string          `json:"tenant_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// PushCompleteData mirrors a push result.
type PushCompleteData struct {
	Synced int      `json:"synced"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

// PullAppliedData reports one pull+apply cycle.
type PullAppliedData struct {
	Received int   `json:"received"`
	Applied  int   `json:"applied"`
	Cursor   int64 `json:"cursor"`
}

// BackupCreatedData reports a new artifact.
type BackupCreatedData struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// JournalStatsData reports journal counts.
type JournalStatsData struct {
	Pending int `json:"pending"`
	Total   int `json:"total"`
}

// Server manages WebSocket subscribers and broadcasts events to them.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates a dashboard server listening on the given port.
// If logger is nil, log.Default() is used.
func NewServer(port int, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      fmt.Sprintf(":%d", port),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Event, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Start begins listening and serving WebSocket subscribers.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.broadcastLoop()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Dashboard server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down and disconnects all subscribers.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("dashboard shutdown error: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Publish queues an event for broadcast. Never blocks; when the queue is
// full the event is dropped.
func (s *Server) Publish(evt Event) {
	select {
	case s.broadcast <- evt:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: dashboard queue full, dropping event")
	}
}

// PublishData marshals data and queues a typed event.
func (s *Server) PublishData(typ EventType, tenantID string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Printf("Failed to marshal %s event: %v", typ, err)
		return
	}
	s.Publish(Event{Type: typ, TenantID: tenantID, Timestamp: time.Now(), Data: raw})
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case evt := <-s.broadcast:
			if evt.Timestamp.IsZero() {
				evt.Timestamp = time.Now()
			}

			data, err := json.Marshal(evt)
			if err != nil {
				s.logger.Printf("Failed to marshal event: %v", err)
				continue
			}

			s.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				conns = append(conns, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Dashboard client connected (total: %d)", count)
	go s.readLoop(conn)
}

// readLoop drains client frames so pings keep the connection alive, and
// detects disconnects.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		count := len(s.clients)
		s.clientsMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Dashboard client disconnected (total: %d)", count)
		return
	}
	s.clientsMu.Unlock()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	count := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": count,
	})
}

// Addr returns the live listening address, useful when port 0 was given.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected subscribers.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
