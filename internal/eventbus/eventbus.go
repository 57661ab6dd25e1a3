// Package eventbus fire-and-forgets notable GVCP events (CCP privilege
// transitions, connection-status changes, daemon lifecycle, socket
// recreation) onto an external NATS subject, adapted from the platform's
// UnifiedControlPlane NATS wiring. It is optional: a nil or unconfigured Bus
// is always safe to publish to.
package eventbus

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "gvcam.events"

// Event is one notable occurrence on the control plane.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
}

// Bus publishes Events to NATS. The zero value is not usable; build one with
// Connect or NewNoop.
type Bus struct {
	conn   *nats.Conn
	logger *log.Logger
}

// Connect dials url with the platform's standard reconnect policy. A
// connection failure is logged and yields a no-op Bus rather than an error:
// the GVCP control loop must keep running with or without an event sink.
func Connect(url string, logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	if url == "" {
		return &Bus{logger: logger}
	}
	nc, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Printf("eventbus: reconnected to %s", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Printf("eventbus: disconnected: %v", err)
			}
		}),
	)
	if err != nil {
		logger.Printf("eventbus: connection to %s failed, continuing without an event sink: %v", url, err)
		return &Bus{logger: logger}
	}
	return &Bus{conn: nc, logger: logger}
}

// NewNoop returns a Bus that drops every publish, for callers that never
// configured an event sink.
func NewNoop() *Bus { return &Bus{logger: log.Default()} }

// Publish fire-and-forgets an event under "gvcam.events.<type>". It never
// blocks the caller and is a no-op when the Bus has no live connection.
func (b *Bus) Publish(eventType string, payload map[string]interface{}) {
	if b == nil || b.conn == nil {
		return
	}
	event := Event{Type: eventType, Timestamp: time.Now().UTC(), Payload: payload}
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Printf("eventbus: marshal failed for %q: %v", eventType, err)
		return
	}
	if err := b.conn.Publish(subjectPrefix+"."+eventType, data); err != nil {
		b.logger.Printf("eventbus: publish failed for %q: %v", eventType, err)
	}
}

// Close closes the underlying NATS connection, if any, without draining it.
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	b.conn.Close()
}
