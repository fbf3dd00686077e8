package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-crm/pkg/logging"
)

func newTestRouter(t *testing.T) (http.Handler, *Service, *recordingBroadcaster) {
	t.Helper()
	svc, _, bc, _ := newTestService(t)
	r := chi.NewRouter()
	r.Route("/api/notifications", NewHandler(svc, logging.Default()).RegisterRoutes)
	return r, svc, bc
}

func doRequest(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHandlerListNotifications(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	_, err := svc.SystemNotice(context.Background(), "hello")
	require.NoError(t, err)

	rec, body := doRequest(t, router, http.MethodGet, "/api/notifications?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["unreadCount"])

	items := body["notifications"].([]any)
	require.Len(t, items, 1)
	first := items[0].(map[string]any)
	assert.Equal(t, "hello", first["message"])
	assert.Equal(t, "system", first["type"])
	assert.Contains(t, first, "appointment")
	assert.Nil(t, first["appointment"])
}

func TestHandlerMarkRead(t *testing.T) {
	router, svc, bc := newTestRouter(t)
	n, err := svc.SystemNotice(context.Background(), "hello")
	require.NoError(t, err)

	rec, body := doRequest(t, router, http.MethodPatch, "/api/notifications/"+n.ID+"/read")
	assert.Equal(t, http.StatusOK, rec.Code)
	notification := body["notification"].(map[string]any)
	assert.Equal(t, true, notification["read"])
	assert.Equal(t, []string{EventNotification, EventNotificationRead}, bc.names())
}

func TestHandlerMarkReadUnknown(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, body := doRequest(t, router, http.MethodPatch, "/api/notifications/missing/read")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "notification not found", body["message"])
}

func TestHandlerMarkAllReadAndUnreadCount(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	for i := 0; i < 2; i++ {
		_, err := svc.SystemNotice(context.Background(), "hello")
		require.NoError(t, err)
	}

	rec, body := doRequest(t, router, http.MethodPatch, "/api/notifications/read-all")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "All notifications marked as read", body["message"])

	rec, body = doRequest(t, router, http.MethodGet, "/api/notifications/unread-count")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["unreadCount"])
}
