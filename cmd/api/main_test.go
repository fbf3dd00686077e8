package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/clinic-crm/internal/config"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		ClinicName:                  "Test Clinic",
		ClinicTimezone:              "UTC",
		RealtimeChannel:             "clinic:test",
		CalendlyBookingURL:          "https://calendly.com/clinic/visit",
		CalendlyTimeout:             time.Second,
		EmailProvider:               "stub",
		EmailRetryAttempts:          1,
		EmailWorkerCount:            1,
		EmailMemoryQueueSize:        8,
		NotificationRetentionDays:   30,
		NotificationCleanupInterval: time.Hour,
	}
}

func TestSetupMetricsExposesClinicMetrics(t *testing.T) {
	handler, m := setupMetrics()
	require.NotNil(t, handler)
	require.NotNil(t, m)

	m.ObserveBooking("accepted")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "appointments_booking_requests_total")
}

func TestBuildAppInMemory(t *testing.T) {
	logger := logging.New("error")
	ctx, cancel := context.WithCancel(context.Background())

	a, err := buildApp(ctx, testConfig(), logger)
	require.NoError(t, err)
	defer a.close()
	assert.Nil(t, a.relay, "no redis configured")
	require.NotNil(t, a.emailWorker, "memory queue needs the inline worker")

	wait, err := a.run(ctx)
	require.NoError(t, err)

	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "memory", health["storage"])
	assert.Equal(t, "local", health["realtime"])
	assert.Equal(t, "stub", health["email"])

	body := `{"name":"Jane Doe","email":"jane@example.com","phone":"5551234567"}`
	resp, err = http.Post(srv.URL+"/api/public/book-appointment", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	wait()
}

func TestBuildAppWithRedisRelay(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()

	ctx, cancel := context.WithCancel(context.Background())
	a, err := buildApp(ctx, cfg, logging.New("error"))
	require.NoError(t, err)
	defer a.close()
	require.NotNil(t, a.relay)

	wait, err := a.run(ctx)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, bytes.Contains(rr.Body.Bytes(), []byte(`"redis":"ok"`)))

	cancel()
	wait()
}
