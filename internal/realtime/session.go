package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wolfman30/clinic-crm/pkg/logging"
)

const (
	sendBuffer     = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client actions.
const (
	ActionJoinDashboard  = "join_dashboard"
	ActionJoinDoctorRoom = "join_doctor_room"
	ActionLeaveDashboard = "leave_dashboard"
	ActionPing           = "ping"
)

// Session is one connected dashboard websocket.
type Session struct {
	ID   string
	send chan []byte
}

// NewSession allocates a session with a buffered outbox.
func NewSession() *Session {
	return &Session{ID: uuid.New().String(), send: make(chan []byte, sendBuffer)}
}

// Outbox exposes the frames queued for the session.
func (s *Session) Outbox() <-chan []byte {
	return s.send
}

// ClientMessage is what a dashboard sends over the socket.
type ClientMessage struct {
	Action string `json:"action"`
}

// Handler upgrades /ws/dashboard requests and pumps frames to the session.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewHandler creates a websocket handler. An empty allowedOrigins list
// accepts every origin.
func NewHandler(hub *Hub, allowedOrigins []string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

// ServeHTTP handles GET /ws/dashboard.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("realtime: upgrade failed", "error", err)
		return
	}

	session := NewSession()
	h.hub.Register(session)
	h.logger.Info("realtime: session connected", "session_id", session.ID, "remote_addr", r.RemoteAddr)

	go h.writePump(session, conn)
	h.readPump(session, conn)
}

func (h *Handler) readPump(s *Session, conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(s)
		_ = conn.Close()
		h.logger.Info("realtime: session disconnected", "session_id", s.ID)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("realtime: read failed", "session_id", s.ID, "error", err)
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		h.handleMessage(s, msg)
	}
}

func (h *Handler) handleMessage(s *Session, msg ClientMessage) {
	switch strings.TrimSpace(msg.Action) {
	case ActionJoinDashboard, ActionJoinDoctorRoom:
		if h.hub.Join(s) {
			h.reply(s, Event{Name: "joined_dashboard", Data: map[string]any{"sessionId": s.ID}})
		}
	case ActionLeaveDashboard:
		h.hub.Leave(s)
	case ActionPing:
		h.reply(s, Event{Name: "pong"})
	}
}

// reply queues a frame for one session only. It runs on the read pump, which
// is also the only caller of Unregister, so the outbox is still open.
func (h *Handler) reply(s *Session, evt Event) {
	frame, err := EncodeFrame(evt, time.Now())
	if err != nil {
		return
	}
	select {
	case s.send <- frame:
	default:
	}
}

func (h *Handler) writePump(s *Session, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
