package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool
	RealtimeChannel string

	AdminJWTSecret       string
	CORSAllowedOrigins   []string
	PublicRateLimitRPS   float64
	PublicRateLimitBurst int

	// Clinic
	ClinicName     string
	ClinicTimezone string

	// Calendly scheduling links and webhooks
	CalendlyAccessToken       string
	CalendlyUserURI           string
	CalendlyBookingURL        string
	CalendlyWebhookSigningKey string
	CalendlyAPIBaseURL        string
	CalendlyTimeout           time.Duration

	// Email
	EmailProvider        string
	SendGridAPIKey       string
	EmailFromAddress     string
	EmailFromName        string
	EmailQueueURL        string
	EmailRetryAttempts   int
	EmailRetryBaseDelay  time.Duration
	EmailWorkerCount     int
	EmailMemoryQueueSize int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	NotificationRetentionDays   int
	NotificationCleanupInterval time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),
		RealtimeChannel: getEnv("REALTIME_CHANNEL", "clinic:dashboard"),

		AdminJWTSecret:       getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		PublicRateLimitRPS:   getEnvAsFloat("PUBLIC_RATE_LIMIT_RPS", 1),
		PublicRateLimitBurst: getEnvAsInt("PUBLIC_RATE_LIMIT_BURST", 5),

		ClinicName:     getEnv("CLINIC_NAME", "Clinic"),
		ClinicTimezone: getEnv("CLINIC_TIMEZONE", "UTC"),

		CalendlyAccessToken:       getEnv("CALENDLY_PERSONAL_ACCESS_TOKEN", ""),
		CalendlyUserURI:           getEnv("CALENDLY_USER_URI", ""),
		CalendlyBookingURL:        getEnv("CALENDLY_BOOKING_URL", "https://calendly.com/udditkantsinha/30min"),
		CalendlyWebhookSigningKey: getEnv("CALENDLY_WEBHOOK_SIGNING_KEY", ""),
		CalendlyAPIBaseURL:        getEnv("CALENDLY_API_BASE_URL", "https://api.calendly.com"),
		CalendlyTimeout:           getEnvAsDuration("CALENDLY_TIMEOUT", 5*time.Second),

		EmailProvider:        strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:       getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress:     getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:        getEnv("EMAIL_FROM_NAME", "Clinic"),
		EmailQueueURL:        getEnv("EMAIL_QUEUE_URL", ""),
		EmailRetryAttempts:   getEnvAsInt("EMAIL_RETRY_ATTEMPTS", 3),
		EmailRetryBaseDelay:  getEnvAsDuration("EMAIL_RETRY_BASE_DELAY", 2*time.Second),
		EmailWorkerCount:     getEnvAsInt("EMAIL_WORKER_COUNT", 2),
		EmailMemoryQueueSize: getEnvAsInt("EMAIL_MEMORY_QUEUE_SIZE", 256),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		NotificationRetentionDays:   getEnvAsInt("NOTIFICATION_RETENTION_DAYS", 30),
		NotificationCleanupInterval: getEnvAsDuration("NOTIFICATION_CLEANUP_INTERVAL", 24*time.Hour),
	}
}

// Location resolves ClinicTimezone, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	if c == nil || strings.TrimSpace(c.ClinicTimezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CalendlyAPIEnabled reports whether one-time scheduling links can be requested from the API.
func (c *Config) CalendlyAPIEnabled() bool {
	return c != nil && c.CalendlyAccessToken != "" && c.CalendlyUserURI != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
