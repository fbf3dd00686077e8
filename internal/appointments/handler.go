package appointments

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-crm/internal/apperr"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

// Handler exposes the booking form and the dashboard appointment endpoints.
type Handler struct {
	coord  *Coordinator
	logger *logging.Logger
}

// NewHandler creates an appointments HTTP handler.
func NewHandler(coord *Coordinator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{coord: coord, logger: logger}
}

// RegisterPublicRoutes mounts the unauthenticated booking endpoints.
// Expected under /api/public.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/book-appointment", h.BookAppointment)
	r.Get("/health", h.Health)
}

// RegisterRoutes mounts dashboard endpoints. Expected under /api/appointments.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/upcoming", h.upcoming)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.cancel)
}

// BookAppointment handles POST /api/public/book-appointment.
func (h *Handler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Please check your information: the request body is not valid JSON")
		return
	}

	result, err := h.coord.RequestAppointment(r.Context(), req)
	if err != nil {
		status := apperr.HTTPStatus(err)
		body := map[string]any{"success": false}
		if status == http.StatusBadRequest {
			body["message"] = "Please check your information: " + apperr.Message(err, err.Error())
		} else {
			h.logger.Error("appointments handler: book", "error", err)
			body["message"] = "We could not complete your booking, please try again shortly"
		}
		for k, v := range apperr.FieldsOf(err) {
			body[k] = v
		}
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "Appointment request received. Please pick a time using the scheduling link.",
		"calendlyLink":  result.SchedulingLink,
		"patientId":     result.PatientID,
		"appointmentId": result.AppointmentID,
	})
}

// Health handles GET /api/public/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Public API is healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, pagination, err := h.coord.ListAppointments(r.Context(), ListQuery{
		Date:   q.Get("date"),
		Status: q.Get("status"),
		Page:   queryInt(q.Get("page"), 1),
		Limit:  queryInt(q.Get("limit"), defaultPageSize),
	})
	if err != nil {
		h.fail(w, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"appointments": items,
		"pagination":   pagination,
	})
}

func (h *Handler) upcoming(w http.ResponseWriter, r *http.Request) {
	items, err := h.coord.ListUpcoming(r.Context())
	if err != nil {
		h.fail(w, "upcoming", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "appointments": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.coord.GetAppointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "appointment": appt})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	appt, err := h.coord.CreateAppointment(r.Context(), req)
	if err != nil {
		h.fail(w, "create", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "appointment": appt})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	appt, err := h.coord.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "appointment": appt})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	if _, err := h.coord.CancelAppointment(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Appointment cancelled"})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("appointments handler: "+op, "error", err)
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
