package appointments

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-crm/internal/calendly"
	"github.com/wolfman30/clinic-crm/internal/patients"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

type memoryTracker struct {
	mu      sync.Mutex
	seen    map[string]bool
	lookErr error
}

func newMemoryTracker() *memoryTracker {
	return &memoryTracker{seen: map[string]bool{}}
}

func (m *memoryTracker) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookErr != nil {
		return false, m.lookErr
	}
	return m.seen[provider+"/"+eventID], nil
}

func (m *memoryTracker) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := provider + "/" + eventID
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

const createdBody = `{"event_type":"invitee.created","payload":{"invitee":{"email":"jane@example.com","name":"Jane Doe"},"event":{"start_time":"2024-06-01T14:30:00Z","uuid":"EV-1"}}}`

func postWebhook(t *testing.T, h *WebhookHandler, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/calendly", bytes.NewBufferString(body))
	if signature != "" {
		req.Header.Set(calendly.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	hs := newHarness()
	handler := NewWebhookHandler("secret", hs.coord, newMemoryTracker(), nil, logging.Default())

	rec := postWebhook(t, handler, createdBody, "t=1,v1=deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postWebhook(t, handler, createdBody, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, hs.notifier.events)
}

func TestWebhookAppliesSignedEventOnce(t *testing.T) {
	hs := newHarness()
	hs.book("Jane Doe", "jane@example.com", "5551234567")
	tracker := newMemoryTracker()
	handler := NewWebhookHandler("secret", hs.coord, tracker, nil, logging.Default())

	sig := calendly.Sign("secret", time.Now(), []byte(createdBody))
	rec := postWebhook(t, handler, createdBody, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, hs.notifier.count(EventConfirmed))
	assert.True(t, tracker.seen["calendly/invitee.created:EV-1:2024-06-01T14:30:00Z"])

	rec = postWebhook(t, handler, createdBody, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "already processed")
	assert.Equal(t, 1, hs.notifier.count(EventConfirmed))
}

func TestWebhookUnsignedAcceptedWithoutSecret(t *testing.T) {
	hs := newHarness()
	handler := NewWebhookHandler("", hs.coord, nil, nil, logging.Default())
	rec := postWebhook(t, handler, createdBody, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookBadBody(t *testing.T) {
	hs := newHarness()
	handler := NewWebhookHandler("", hs.coord, nil, nil, logging.Default())
	rec := postWebhook(t, handler, `{"payload":{}}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookValidationFailureIsAcknowledged(t *testing.T) {
	hs := newHarness()
	handler := NewWebhookHandler("", hs.coord, newMemoryTracker(), nil, logging.Default())
	body := `{"event_type":"invitee.created","payload":{"invitee":{"email":""},"event":{"start_time":"2024-06-01T14:30:00Z","uuid":"EV-2"}}}`
	rec := postWebhook(t, handler, body, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestWebhookDependencyFailureAsksForRetry(t *testing.T) {
	repo := NewInMemoryRepository()
	store := &failingPatientStore{InMemoryRepository: patients.NewInMemoryRepository(), createErr: errors.New("db down")}
	coord := NewCoordinator(repo, store, &fakeLinks{}, logging.Default())
	tracker := newMemoryTracker()
	handler := NewWebhookHandler("", coord, tracker, nil, logging.Default())

	rec := postWebhook(t, handler, createdBody, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, tracker.seen, "failed deliveries are not marked processed")

	tracker.lookErr = errors.New("db down")
	rec = postWebhook(t, handler, createdBody, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEventKey(t *testing.T) {
	assert.Empty(t, eventKey(ProviderEvent{Type: "invitee.canceled"}))
	assert.Equal(t, "invitee.canceled:EV", eventKey(ProviderEvent{Type: "invitee.canceled", ExternalEventID: "EV"}))
}
