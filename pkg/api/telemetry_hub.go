package api

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	customlog "github.com/pyroscout/controller/pkg/log"
)

// TelemetryEvent is one frame pushed to telemetry websocket clients.
type TelemetryEvent struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// TelemetryHub fans controller events out to connected websocket clients.
// Each client gets a buffered queue; a slow client drops frames rather than
// backpressuring the event sources.
type TelemetryHub struct {
	logger customlog.Logger

	mu   sync.Mutex
	subs map[chan TelemetryEvent]struct{}
}

// NewTelemetryHub creates an empty hub.
func NewTelemetryHub(logger customlog.Logger) *TelemetryHub {
	return &TelemetryHub{
		logger: logger,
		subs:   make(map[chan TelemetryEvent]struct{}),
	}
}

// Broadcast queues an event for every connected client.
func (h *TelemetryHub) Broadcast(eventType string, data interface{}) {
	ev := TelemetryEvent{Type: eventType, Timestamp: time.Now(), Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Client lagging; skip this frame for it.
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *TelemetryHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *TelemetryHub) subscribe() chan TelemetryEvent {
	ch := make(chan TelemetryEvent, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *TelemetryHub) unsubscribe(ch chan TelemetryEvent) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// TelemetryWebSocketHandler streams controller events to one client until
// the connection drops.
func (h *TelemetryHub) TelemetryWebSocketHandler(conn *websocket.Conn) {
	h.logger.Infof("Telemetry WebSocket connected: %s", conn.RemoteAddr())

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	// Reads are only consumed to detect the close; clients do not send.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			h.logger.Infof("Telemetry WebSocket disconnected: %s", conn.RemoteAddr())
			return
		case ev := <-ch:
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Infof("Telemetry WebSocket write failed, closing: %s", conn.RemoteAddr())
				return
			}
		}
	}
}
