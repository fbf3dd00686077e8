package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-crm/cmd/mainconfig"
	"github.com/wolfman30/clinic-crm/internal/api/router"
	"github.com/wolfman30/clinic-crm/internal/app/bootstrap"
	"github.com/wolfman30/clinic-crm/internal/appointments"
	"github.com/wolfman30/clinic-crm/internal/calendly"
	appconfig "github.com/wolfman30/clinic-crm/internal/config"
	"github.com/wolfman30/clinic-crm/internal/notifications"
	"github.com/wolfman30/clinic-crm/internal/notify"
	"github.com/wolfman30/clinic-crm/internal/observability/metrics"
	"github.com/wolfman30/clinic-crm/internal/patients"
	"github.com/wolfman30/clinic-crm/internal/realtime"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

// app holds everything the API process owns. Background loops are started
// by run and stop when its context ends.
type app struct {
	handler     http.Handler
	db          *bootstrap.Database
	redis       *redis.Client
	relay       *realtime.RedisRelay
	emailWorker *notify.Worker
	sweeper     *notifications.RetentionSweeper
	logger      *logging.Logger
}

func setupMetrics() (http.Handler, *metrics.ClinicMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewClinicMetrics(reg)
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	metricsHandler, m := setupMetrics()
	loc := cfg.Location()

	db, err := bootstrap.ConnectDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	stores := bootstrap.BuildStores(db)
	if stores.Backend == "memory" {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
	}

	var awsCfg *aws.Config
	if bootstrap.NeedsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		awsCfg = &loaded
	}

	// Real-time fan-out: the local hub always serves this instance's
	// sockets; with Redis every broadcast goes through the relay so all
	// instances see it.
	hub := realtime.NewHub(m, logger.Component("realtime"))
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	relay := realtime.NewRedisRelay(redisClient, hub, cfg.RealtimeChannel, m, logger.Component("realtime"))
	var broadcaster realtime.Broadcaster = hub
	realtimeMode := "local"
	if relay != nil {
		broadcaster = relay
		realtimeMode = "redis"
	}

	notificationSvc := notifications.NewService(stores.Notifications, broadcaster, stores.Appointments, logger.Component("notifications")).
		WithMetrics(m).
		WithLocation(loc)

	renderer, err := notify.NewRenderer(cfg.ClinicName, cfg.EmailFromAddress, loc)
	if err != nil {
		db.Close()
		return nil, err
	}
	sender, emailProvider := bootstrap.BuildEmailSender(cfg, awsCfg, m, logger.Component("email"))
	queue, inline := bootstrap.BuildEmailQueue(cfg, awsCfg)
	mailer := notify.NewMailer(queue, renderer, logger.Component("email")).WithMetrics(m)
	var emailWorker *notify.Worker
	if inline {
		emailWorker = notify.NewWorker(queue, sender, logger.Component("email")).WithWorkers(cfg.EmailWorkerCount)
	}

	links := calendly.NewClient(calendly.Config{
		AccessToken: cfg.CalendlyAccessToken,
		OwnerURI:    cfg.CalendlyUserURI,
		BookingURL:  cfg.CalendlyBookingURL,
		APIBaseURL:  cfg.CalendlyAPIBaseURL,
	}, logger.Component("calendly"))

	coord := appointments.NewCoordinator(stores.Appointments, stores.Patients, links, logger.Component("appointments")).
		WithNotifier(notificationSvc).
		WithMailer(mailer).
		WithMetrics(m).
		WithLocation(loc).
		WithLinkTimeout(cfg.CalendlyTimeout)
	patientSvc := patients.NewService(stores.Patients, mailer, logger.Component("patients"))

	retention := cfg.NotificationRetentionDays
	sweeper := notifications.NewRetentionSweeper(notificationSvc, retention, cfg.NotificationCleanupInterval, logger.Component("retention")).
		WithTask("processed_events", func(ctx context.Context) error {
			days := retention
			if days <= 0 {
				days = notifications.DefaultRetentionDays
			}
			n, err := stores.Processed.PurgeOlderThan(ctx, time.Now().UTC().AddDate(0, 0, -days))
			if err == nil && n > 0 {
				logger.Info("purged processed webhook events", "count", n)
			}
			return err
		})

	healthChecks := map[string]router.HealthCheck{}
	if db != nil {
		healthChecks["database"] = func(ctx context.Context) error { return db.Pool.Ping(ctx) }
	}
	if redisClient != nil {
		healthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	handler := router.New(&router.Config{
		Logger:               logger,
		AppointmentsHandler:  appointments.NewHandler(coord, logger),
		CalendlyWebhook:      appointments.NewWebhookHandler(cfg.CalendlyWebhookSigningKey, coord, stores.Processed, m, logger.Component("calendly-webhook")),
		PatientsHandler:      patients.NewHandler(patientSvc, logger),
		NotificationsHandler: notifications.NewHandler(notificationSvc, logger),
		DashboardSocket:      realtime.NewHandler(hub, cfg.CORSAllowedOrigins, logger.Component("realtime")),
		MetricsHandler:       metricsHandler,
		AdminAuthSecret:      cfg.AdminJWTSecret,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		PublicRateLimitRPS:   cfg.PublicRateLimitRPS,
		PublicRateLimitBurst: cfg.PublicRateLimitBurst,
		HealthChecks:         healthChecks,
		HealthDetails: map[string]any{
			"storage":          stores.Backend,
			"realtime":         realtimeMode,
			"email":            emailProvider,
			"calendlyAPI":      cfg.CalendlyAPIEnabled(),
			"webhookSignature": cfg.CalendlyWebhookSigningKey != "",
		},
	})

	logger.Info("api wired",
		"storage", stores.Backend,
		"realtime", realtimeMode,
		"email_provider", emailProvider,
		"email_inline_worker", inline,
		"calendly_api", cfg.CalendlyAPIEnabled(),
	)

	return &app{
		handler:     handler,
		db:          db,
		redis:       redisClient,
		relay:       relay,
		emailWorker: emailWorker,
		sweeper:     sweeper,
		logger:      logger,
	}, nil
}

// run starts the background loops. The returned function waits for them
// after ctx is cancelled.
func (a *app) run(ctx context.Context) (wait func(), err error) {
	done := make(chan struct{}, 2)
	loops := 0
	if a.relay != nil {
		loops++
		go func() {
			defer func() { done <- struct{}{} }()
			if err := a.relay.Run(ctx, nil); err != nil {
				a.logger.Error("realtime relay stopped", "error", err)
			}
		}()
	}
	if a.emailWorker != nil {
		loops++
		go func() {
			defer func() { done <- struct{}{} }()
			a.emailWorker.Run(ctx)
		}()
	}
	if err := a.sweeper.Start(); err != nil {
		return nil, err
	}
	return func() {
		a.sweeper.Stop()
		for i := 0; i < loops; i++ {
			<-done
		}
	}, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.db.Close()
}
