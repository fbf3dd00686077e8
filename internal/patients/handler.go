package patients

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-crm/internal/apperr"
	"github.com/wolfman30/clinic-crm/internal/http/middleware"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

// Handler exposes patient records to the dashboard.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates a patients HTTP handler.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts patient endpoints. Expected under /api/patients.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/search", h.search)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Post("/{id}/visits", h.addVisit)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Search: q.Get("search"),
		Page:   queryInt(q.Get("page"), 1),
		Limit:  queryInt(q.Get("limit"), 10),
	}
	items, pagination, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list patients", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"patients":   items,
		"pagination": pagination,
	})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		h.fail(w, "search patients", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"patients": items,
		"count":    len(items),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), queryInt(q.Get("page"), 1), queryInt(q.Get("limit"), defaultVisitPageSize))
	if err != nil {
		h.fail(w, "get patient", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "patient": p})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.fail(w, "create patient", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Patient created successfully",
		"patient": p,
	})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, "update patient", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Patient updated successfully",
		"patient": p,
	})
}

func (h *Handler) addVisit(w http.ResponseWriter, r *http.Request) {
	var req AddVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	author := ""
	if claims, ok := middleware.AdminClaimsFromContext(r.Context()); ok {
		author = claims.Subject
	}
	visit, err := h.svc.AddVisit(r.Context(), chi.URLParam(r, "id"), req, author)
	if err != nil {
		h.fail(w, "add visit", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Visit added successfully",
		"visit":   visit,
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("patients handler: "+op, "error", err)
		writeError(w, status, "Something went wrong on our side, please try again shortly")
		return
	}
	writeError(w, status, apperr.Message(err, err.Error()))
}

func queryInt(raw string, fallback int) int {
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}
