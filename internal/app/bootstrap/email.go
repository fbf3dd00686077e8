package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/clinic-crm/internal/config"
	"github.com/wolfman30/clinic-crm/internal/notify"
	"github.com/wolfman30/clinic-crm/internal/observability/metrics"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

// BuildEmailSender selects the transport named by EMAIL_PROVIDER and wraps it
// with bounded retry. A provider that cannot be configured falls back to the
// stub sender, which only logs. awsCfg may be nil when SES is not in use.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, m *metrics.ClinicMetrics, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	var (
		sender   notify.EmailSender
		provider = "stub"
	)
	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "sendgrid":
		if sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); sg != nil {
			sender, provider = sg, "sendgrid"
		} else {
			logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is empty; using stub sender")
		}
	case "ses":
		if awsCfg != nil {
			sender = notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail: cfg.EmailFromAddress,
				FromName:  cfg.EmailFromName,
			}, logger)
			provider = "ses"
		} else {
			logger.Warn("EMAIL_PROVIDER=ses but AWS config is unavailable; using stub sender")
		}
	case "", "stub":
	default:
		logger.Warn("unknown EMAIL_PROVIDER; using stub sender", "provider", cfg.EmailProvider)
	}
	if sender == nil {
		sender = notify.NewStubEmailSender(logger)
	}

	return notify.NewRetryingSender(sender, logger).
		WithMaxAttempts(cfg.EmailRetryAttempts).
		WithBaseDelay(cfg.EmailRetryBaseDelay).
		WithMetrics(m), provider
}

// BuildEmailQueue returns the SQS queue when EMAIL_QUEUE_URL is set, so a
// separate email-worker drains it. Otherwise it returns an in-memory queue
// and inline is true: the caller must run a notify.Worker in-process.
func BuildEmailQueue(cfg *appconfig.Config, awsCfg *aws.Config) (queue notify.Queue, inline bool) {
	if url := strings.TrimSpace(cfg.EmailQueueURL); url != "" && awsCfg != nil {
		return notify.NewSQSQueue(sqs.NewFromConfig(*awsCfg), url), false
	}
	return notify.NewMemoryQueue(cfg.EmailMemoryQueueSize), true
}

// NeedsAWS reports whether any configured component talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	if cfg == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(cfg.EmailProvider), "ses") || strings.TrimSpace(cfg.EmailQueueURL) != ""
}
