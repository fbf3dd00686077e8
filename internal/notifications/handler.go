package notifications

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-crm/internal/apperr"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

// Handler serves the dashboard notification feed.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the feed under /api/notifications.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/unread-count", h.unreadCount)
	r.Patch("/read-all", h.markAllRead)
	r.Patch("/{id}/read", h.markRead)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	page, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		h.fail(w, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"notifications": page.Items,
		"unreadCount":   page.UnreadCount,
	})
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.UnreadCount(r.Context())
	if err != nil {
		h.fail(w, "unread count", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "unreadCount": count})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "mark read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "notification": n})
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.MarkAllRead(r.Context()); err != nil {
		h.fail(w, "mark all read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "All notifications marked as read"})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("notifications handler: "+op, "error", err)
		writeJSON(w, status, map[string]any{"success": false, "message": "Something went wrong on our side, please try again shortly"})
		return
	}
	writeJSON(w, status, map[string]any{"success": false, "message": apperr.Message(err, err.Error())})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
