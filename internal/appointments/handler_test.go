package appointments

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-crm/pkg/logging"
)

func newRouter(h *harness) http.Handler {
	handler := NewHandler(h.coord, logging.Default())
	r := chi.NewRouter()
	r.Route("/api/public", handler.RegisterPublicRoutes)
	r.Route("/api/appointments", handler.RegisterRoutes)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func TestBookAppointmentEndpoint(t *testing.T) {
	h := newHarness()
	router := newRouter(h)

	rec, body := doJSON(t, router, http.MethodPost, "/api/public/book-appointment",
		`{"name":"Jane Doe","email":"jane@example.com","phone":"5551234567","message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["calendlyLink"])
	assert.NotEmpty(t, body["patientId"])
	assert.NotEmpty(t, body["appointmentId"])
}

func TestBookAppointmentEndpointValidation(t *testing.T) {
	router := newRouter(newHarness())

	rec, body := doJSON(t, router, http.MethodPost, "/api/public/book-appointment", `{"name":"Jane","email":"bad","phone":"5551234567"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "Please check your information")

	rec, _ = doJSON(t, router, http.MethodPost, "/api/public/book-appointment", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublicHealth(t *testing.T) {
	rec, body := doJSON(t, newRouter(newHarness()), http.MethodGet, "/api/public/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["timestamp"])
}

func TestDashboardAppointmentEndpoints(t *testing.T) {
	h := newHarness()
	router := newRouter(h)
	res := h.book("Jane Doe", "jane@example.com", "5551234567")

	rec, body := doJSON(t, router, http.MethodGet, "/api/appointments?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["appointments"], 1)
	pagination := body["pagination"].(map[string]any)
	assert.EqualValues(t, 1, pagination["total"])

	rec, body = doJSON(t, router, http.MethodGet, "/api/appointments/upcoming", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["appointments"], 1)

	rec, body = doJSON(t, router, http.MethodPatch, "/api/appointments/"+res.AppointmentID, `{"status":"completed"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["message"], "cannot move appointment from pending to completed")

	rec, body = doJSON(t, router, http.MethodPatch, "/api/appointments/"+res.AppointmentID, `{"status":"scheduled","date":"2024-06-03","time":"09:00"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	appt := body["appointment"].(map[string]any)
	assert.Equal(t, "scheduled", appt["status"])
	assert.Equal(t, "09:00", appt["time"])

	rec, _ = doJSON(t, router, http.MethodDelete, "/api/appointments/"+res.AppointmentID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = doJSON(t, router, http.MethodGet, "/api/appointments/"+res.AppointmentID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", body["appointment"].(map[string]any)["status"])

	rec, _ = doJSON(t, router, http.MethodGet, "/api/appointments/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = doJSON(t, router, http.MethodPost, "/api/appointments", `{"name":"Walk In","phone":"5550001111","date":"2024-06-04","time":"11:00","type":"follow-up"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "follow-up", body["appointment"].(map[string]any)["type"])
}

func TestDashboardCancelsPendingRequest(t *testing.T) {
	h := newHarness()
	router := newRouter(h)
	patched := h.book("Jane Doe", "jane@example.com", "5551234567")
	deleted := h.book("John Roe", "john@example.com", "5559876543")

	rec, body := doJSON(t, router, http.MethodPatch, "/api/appointments/"+patched.AppointmentID, `{"status":"cancelled"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	appt := body["appointment"].(map[string]any)
	assert.Equal(t, "cancelled", appt["status"])
	assert.NotContains(t, appt, "date")

	rec, _ = doJSON(t, router, http.MethodDelete, "/api/appointments/"+deleted.AppointmentID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, h.notifier.count(EventCancelled))
}
