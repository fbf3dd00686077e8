package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("CALENDLY_BOOKING_URL", "")
	t.Setenv("CALENDLY_PERSONAL_ACCESS_TOKEN", "")
	t.Setenv("NOTIFICATION_RETENTION_DAYS", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.CalendlyBookingURL != "https://calendly.com/udditkantsinha/30min" {
		t.Fatalf("unexpected default booking url %s", cfg.CalendlyBookingURL)
	}
	if cfg.CalendlyTimeout != 5*time.Second {
		t.Fatalf("expected 5s provider timeout, got %s", cfg.CalendlyTimeout)
	}
	if cfg.CalendlyAPIEnabled() {
		t.Fatalf("expected calendly api disabled without token")
	}
	if cfg.NotificationRetentionDays != 30 {
		t.Fatalf("expected 30 day retention, got %d", cfg.NotificationRetentionDays)
	}
	if cfg.EmailRetryAttempts != 3 || cfg.EmailRetryBaseDelay != 2*time.Second {
		t.Fatalf("unexpected email retry defaults %d/%s", cfg.EmailRetryAttempts, cfg.EmailRetryBaseDelay)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors default %v", cfg.CORSAllowedOrigins)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC location by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("CALENDLY_PERSONAL_ACCESS_TOKEN", "tok")
	t.Setenv("CALENDLY_USER_URI", "https://api.calendly.com/users/abc")
	t.Setenv("CALENDLY_TIMEOUT", "2s")
	t.Setenv("EMAIL_PROVIDER", " SES ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("PUBLIC_RATE_LIMIT_RPS", "2.5")
	t.Setenv("NOTIFICATION_CLEANUP_INTERVAL", "6h")
	t.Setenv("CLINIC_TIMEZONE", "America/New_York")
	cfg := Load()
	if cfg.Port != "9090" || cfg.Env != "production" {
		t.Fatalf("expected port/env overrides, got %s/%s", cfg.Port, cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if !cfg.CalendlyAPIEnabled() {
		t.Fatalf("expected calendly api enabled")
	}
	if cfg.CalendlyTimeout != 2*time.Second {
		t.Fatalf("expected timeout override, got %s", cfg.CalendlyTimeout)
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected normalized provider, got %q", cfg.EmailProvider)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected two origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.PublicRateLimitRPS != 2.5 {
		t.Fatalf("expected rps override, got %v", cfg.PublicRateLimitRPS)
	}
	if cfg.NotificationCleanupInterval != 6*time.Hour {
		t.Fatalf("expected cleanup interval override, got %s", cfg.NotificationCleanupInterval)
	}
	if cfg.Location().String() != "America/New_York" {
		t.Fatalf("expected clinic location, got %s", cfg.Location())
	}
}

func TestLocationFallsBackOnUnknownZone(t *testing.T) {
	cfg := &Config{ClinicTimezone: "Mars/Olympus"}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC fallback")
	}
}
