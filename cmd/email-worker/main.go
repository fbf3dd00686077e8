package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/clinic-crm/cmd/mainconfig"
	"github.com/wolfman30/clinic-crm/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-crm/internal/config"
	"github.com/wolfman30/clinic-crm/internal/notify"
	"github.com/wolfman30/clinic-crm/internal/observability/metrics"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

// email-worker drains the SQS email queue filled by the API when
// EMAIL_QUEUE_URL is set.
func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("email-worker")

	if strings.TrimSpace(cfg.EmailQueueURL) == "" {
		logger.Error("EMAIL_QUEUE_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	m := metrics.NewClinicMetrics(prometheus.DefaultRegisterer)
	sender, provider := bootstrap.BuildEmailSender(cfg, &awsCfg, m, logger)
	queue, _ := bootstrap.BuildEmailQueue(cfg, &awsCfg)

	logger.Info("starting email worker", "provider", provider, "workers", cfg.EmailWorkerCount)
	notify.NewWorker(queue, sender, logger).WithWorkers(cfg.EmailWorkerCount).Run(ctx)
}
