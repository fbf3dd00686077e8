package appointments

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/wolfman30/clinic-crm/internal/apperr"
	"github.com/wolfman30/clinic-crm/internal/calendly"
	"github.com/wolfman30/clinic-crm/internal/observability/metrics"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

const webhookProvider = "calendly"

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// WebhookHandler receives Calendly invitee events.
type WebhookHandler struct {
	signingKey string
	coord      *Coordinator
	processed  processedTracker
	metrics    *metrics.ClinicMetrics
	logger     *logging.Logger
}

// NewWebhookHandler builds the webhook receiver. processed may be nil, in
// which case redeliveries are only caught by the external id check.
func NewWebhookHandler(signingKey string, coord *Coordinator, processed processedTracker, m *metrics.ClinicMetrics, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if signingKey == "" {
		logger.Warn("calendly webhook signing key not set, accepting unsigned webhooks")
	}
	return &WebhookHandler{
		signingKey: signingKey,
		coord:      coord,
		processed:  processed,
		metrics:    m,
		logger:     logger,
	}
}

// Handle serves POST /api/webhooks/calendly. Dependency failures return 500
// so the provider retries; anything else is acknowledged.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := calendly.VerifySignature(h.signingKey, r.Header.Get(calendly.SignatureHeader), payload); err != nil {
		h.logger.Warn("calendly webhook rejected", "error", err)
		h.metrics.ObserveProviderEvent("unknown", "unauthorized", time.Since(start).Seconds())
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	raw, err := calendly.ParseWebhookEvent(payload)
	if err != nil {
		h.logger.Error("failed to decode calendly event", "error", err)
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	evt := ProviderEventFromWebhook(raw)
	key := eventKey(evt)

	if h.processed != nil && key != "" {
		if done, err := h.processed.AlreadyProcessed(r.Context(), webhookProvider, key); err != nil {
			h.logger.Error("processed lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "server error")
			return
		} else if done {
			h.metrics.ObserveProviderEvent(evt.Type, string(OutcomeDuplicate), time.Since(start).Seconds())
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "already processed"})
			return
		}
	}

	outcome, err := h.coord.HandleProviderEvent(r.Context(), evt)
	if err != nil {
		if apperr.Is(err, apperr.KindDependency) || apperr.KindOf(err) == apperr.KindUnknown {
			h.logger.Error("calendly event failed, provider will retry", "event_type", evt.Type, "error", err)
			h.metrics.ObserveProviderEvent(evt.Type, "retry", time.Since(start).Seconds())
			writeError(w, http.StatusInternalServerError, "processing failed")
			return
		}
		// Bad payloads will never succeed; acknowledge so the provider stops retrying.
		h.logger.Warn("calendly event rejected", "event_type", evt.Type, "error", err)
		h.metrics.ObserveProviderEvent(evt.Type, "rejected", time.Since(start).Seconds())
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": apperr.Message(err, "rejected")})
		return
	}

	if h.processed != nil && key != "" {
		if _, err := h.processed.MarkProcessed(r.Context(), webhookProvider, key); err != nil {
			h.logger.Warn("failed to mark calendly event processed", "key", key, "error", err)
		}
	}
	h.metrics.ObserveProviderEvent(evt.Type, string(outcome), time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Webhook processed"})
}

// eventKey identifies a delivery. Reschedules reuse the event uuid, so the
// start time is part of the key.
func eventKey(evt ProviderEvent) string {
	if evt.ExternalEventID == "" {
		return ""
	}
	key := evt.Type + ":" + evt.ExternalEventID
	if !evt.StartTime.IsZero() {
		key += ":" + evt.StartTime.UTC().Format(time.RFC3339)
	}
	return key
}
