// Package realtime pushes dashboard events to connected websocket sessions.
//
// Sessions connect to /ws/dashboard and receive nothing until they join the
// dashboard room. Events are broadcast to room members only. A RedisRelay can
// sit in front of the Hub so that every API instance delivers the same events
// to its own sessions.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/clinic-crm/internal/observability/metrics"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

// Event is a named payload sent to the dashboard room.
type Event struct {
	Name string
	Data any
}

// Frame is the wire format of a broadcast.
type Frame struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	SentAt time.Time       `json:"sent_at"`
}

// Broadcaster delivers events to the dashboard room. The returned count is
// the number of receivers reached (sessions for a Hub, instances for a relay).
type Broadcaster interface {
	Broadcast(ctx context.Context, evt Event) (int, error)
}

// EncodeFrame renders evt as a frame stamped with now.
func EncodeFrame(evt Event, now time.Time) ([]byte, error) {
	frame := Frame{Event: evt.Name, SentAt: now.UTC()}
	if evt.Data != nil {
		data, err := json.Marshal(evt.Data)
		if err != nil {
			return nil, fmt.Errorf("realtime: encode %s payload: %w", evt.Name, err)
		}
		frame.Data = data
	}
	return json.Marshal(frame)
}

// Hub tracks the sessions connected to this instance and the subset that has
// joined the dashboard room.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	room     map[*Session]struct{}

	metrics *metrics.ClinicMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewHub creates an empty hub.
func NewHub(m *metrics.ClinicMetrics, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		sessions: make(map[*Session]struct{}),
		room:     make(map[*Session]struct{}),
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Register adds a connected session. It is not a room member yet.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
}

// Unregister removes the session and closes its send buffer. Safe to call twice.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return
	}
	if _, joined := h.room[s]; joined {
		delete(h.room, s)
		h.metrics.SessionLeft()
	}
	delete(h.sessions, s)
	close(s.send)
}

// Join puts a registered session into the dashboard room. Joining twice is a no-op.
func (h *Hub) Join(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return false
	}
	if _, joined := h.room[s]; joined {
		return true
	}
	h.room[s] = struct{}{}
	h.metrics.SessionJoined()
	return true
}

// Leave takes a session out of the room without disconnecting it.
func (h *Hub) Leave(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, joined := h.room[s]; joined {
		delete(h.room, s)
		h.metrics.SessionLeft()
	}
}

// Sessions returns the number of connected sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Members returns the number of sessions in the dashboard room.
func (h *Hub) Members() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.room)
}

// Broadcast sends evt to every room member on this instance.
func (h *Hub) Broadcast(ctx context.Context, evt Event) (int, error) {
	frame, err := EncodeFrame(evt, h.now())
	if err != nil {
		h.metrics.ObserveBroadcast(evt.Name, 0, err)
		return 0, err
	}
	delivered := h.Deliver(frame)
	h.metrics.ObserveBroadcast(evt.Name, delivered, nil)
	return delivered, nil
}

// Deliver pushes an already encoded frame to room members. Members whose
// buffer is full miss the frame.
func (h *Hub) Deliver(frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for s := range h.room {
		select {
		case s.send <- frame:
			delivered++
		default:
			h.logger.Warn("realtime: dropping frame for slow session", "session_id", s.ID)
		}
	}
	return delivered
}
