package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-crm/internal/appointments"
	httpmiddleware "github.com/wolfman30/clinic-crm/internal/http/middleware"
	"github.com/wolfman30/clinic-crm/internal/notifications"
	"github.com/wolfman30/clinic-crm/internal/patients"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger               *logging.Logger
	AppointmentsHandler  *appointments.Handler
	CalendlyWebhook      *appointments.WebhookHandler
	PatientsHandler      *patients.Handler
	NotificationsHandler *notifications.Handler
	DashboardSocket      http.Handler
	MetricsHandler       http.Handler
	AdminAuthSecret      string
	CORSAllowedOrigins   []string

	PublicRateLimitRPS   float64
	PublicRateLimitBurst int

	// HealthChecks are run by GET /health; HealthDetails are echoed as-is.
	HealthChecks  map[string]HealthCheck
	HealthDetails map[string]any
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(logger))

	r.Get("/health", healthHandler(cfg.HealthChecks, cfg.HealthDetails))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Public booking form
	if cfg.AppointmentsHandler != nil {
		r.Route("/api/public", func(public chi.Router) {
			if cfg.PublicRateLimitRPS > 0 {
				public.Use(httpmiddleware.RateLimit(cfg.PublicRateLimitRPS, cfg.PublicRateLimitBurst))
			}
			public.Use(middleware.Compress(5))
			cfg.AppointmentsHandler.RegisterPublicRoutes(public)
		})
	}

	// Provider webhooks authenticate with their own signature.
	if cfg.CalendlyWebhook != nil {
		r.Post("/api/webhooks/calendly", cfg.CalendlyWebhook.Handle)
	}

	// Dashboard routes
	r.Group(func(dash chi.Router) {
		if cfg.AdminAuthSecret != "" {
			dash.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		} else {
			logger.Warn("ADMIN_JWT_SECRET not set; dashboard routes are unauthenticated")
		}
		dash.Use(middleware.Compress(5))
		if cfg.AppointmentsHandler != nil {
			dash.Route("/api/appointments", cfg.AppointmentsHandler.RegisterRoutes)
		}
		if cfg.PatientsHandler != nil {
			dash.Route("/api/patients", cfg.PatientsHandler.RegisterRoutes)
		}
		if cfg.NotificationsHandler != nil {
			dash.Route("/api/notifications", cfg.NotificationsHandler.RegisterRoutes)
		}
	})

	// The websocket upgrade cannot go through Compress: it needs the raw
	// hijackable connection.
	if cfg.DashboardSocket != nil {
		socket := cfg.DashboardSocket
		if cfg.AdminAuthSecret != "" {
			socket = httpmiddleware.AdminJWTWithQuery(cfg.AdminAuthSecret)(socket)
		}
		r.Handle("/ws/dashboard", socket)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Route not found"})
	})

	return r
}

func healthHandler(checks map[string]HealthCheck, details map[string]any) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "ok"
		results := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				results[name] = err.Error()
				status = "degraded"
				continue
			}
			results[name] = "ok"
		}

		code := http.StatusOK
		if status != "ok" {
			code = http.StatusServiceUnavailable
		}
		body := map[string]any{
			"success":   status == "ok",
			"status":    status,
			"checks":    results,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		for k, v := range details {
			body[k] = v
		}
		writeJSON(w, code, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
