package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-crm/internal/observability/metrics"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 2 * time.Second
)

// RetryingSender retries a failed send a bounded number of times, doubling
// the wait after each attempt (2s, 4s, ... by default).
type RetryingSender struct {
	next        EmailSender
	maxAttempts int
	baseDelay   time.Duration
	metrics     *metrics.ClinicMetrics
	logger      *logging.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRetryingSender(next EmailSender, logger *logging.Logger) *RetryingSender {
	if next == nil {
		panic("notify: sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryingSender{
		next:        next,
		maxAttempts: defaultRetryAttempts,
		baseDelay:   defaultRetryBaseDelay,
		logger:      logger,
		sleep:       sleepContext,
	}
}

func (r *RetryingSender) WithMaxAttempts(n int) *RetryingSender {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

func (r *RetryingSender) WithBaseDelay(d time.Duration) *RetryingSender {
	if d > 0 {
		r.baseDelay = d
	}
	return r
}

func (r *RetryingSender) WithMetrics(m *metrics.ClinicMetrics) *RetryingSender {
	r.metrics = m
	return r
}

// Send tries up to maxAttempts times and returns the last error.
func (r *RetryingSender) Send(ctx context.Context, msg EmailMessage) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		lastErr = r.next.Send(ctx, msg)
		if lastErr == nil {
			r.metrics.ObserveEmail(msg.Template, "sent")
			return nil
		}
		r.logger.Warn("email send failed", "template", msg.Template, "attempt", attempt, "max_attempts", r.maxAttempts, "error", lastErr)
		if attempt == r.maxAttempts {
			break
		}
		if err := r.sleep(ctx, r.delay(attempt)); err != nil {
			lastErr = err
			break
		}
	}
	r.metrics.ObserveEmail(msg.Template, "failed")
	return fmt.Errorf("notify: email %q not sent: %w", msg.Template, lastErr)
}

// delay is the wait after the given 1-based attempt.
func (r *RetryingSender) delay(attempt int) time.Duration {
	return r.baseDelay * time.Duration(1<<(attempt-1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
