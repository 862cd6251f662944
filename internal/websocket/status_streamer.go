// Package websocket pushes live debug-bundle status snapshots to
// administrative clients over a WebSocket connection, so they don't
// have to poll the status endpoint. Adapted from a DAG-visualization
// event streamer: same register/unregister/broadcast hub shape,
// carrying a status snapshot instead of a graph-update event.
package websocket

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ocx/backend/internal/debugbundle"
)

// StatusStreamer manages WebSocket connections for live debug-bundle
// status updates.
type StatusStreamer struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan debugbundle.Snapshot
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewStatusStreamer creates a new streamer hub. Call Run in its own
// goroutine before serving HandleWebSocket.
func NewStatusStreamer() *StatusStreamer {
	return &StatusStreamer{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan debugbundle.Snapshot, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run is the hub's event loop; it owns `clients` exclusively so no
// further locking is needed around membership changes.
func (s *StatusStreamer) Run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.clients[conn] = true
			s.mu.Unlock()
			slog.Debug("debugbundle: websocket client connected", "total", len(s.clients))

		case conn := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				conn.Close()
			}
			s.mu.Unlock()
			slog.Debug("debugbundle: websocket client disconnected", "total", len(s.clients))

		case snap := <-s.broadcast:
			s.mu.RLock()
			for conn := range s.clients {
				if err := conn.WriteJSON(snap); err != nil {
					slog.Warn("debugbundle: websocket write failed", "error", err)
					conn.Close()
					delete(s.clients, conn)
				}
			}
			s.mu.RUnlock()
		}
	}
}

// HandleWebSocket upgrades the HTTP connection and registers it with
// the hub.
func (s *StatusStreamer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("debugbundle: websocket upgrade failed", "error", err)
		return
	}
	s.register <- conn

	go func() {
		defer func() { s.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast pushes a snapshot to every connected client.
func (s *StatusStreamer) Broadcast(snap debugbundle.Snapshot) {
	s.broadcast <- snap
}
