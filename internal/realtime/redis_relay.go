package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-crm/internal/observability/metrics"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

const defaultChannel = "clinic:dashboard"

// RedisRelay publishes dashboard frames on a Redis channel and feeds frames
// received on that channel into the local Hub. Every API instance runs one,
// so a broadcast issued on any instance reaches sessions on all of them.
type RedisRelay struct {
	redis   *redis.Client
	hub     *Hub
	channel string
	tracer  trace.Tracer
	metrics *metrics.ClinicMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewRedisRelay returns nil when redisClient is nil so callers can fall back
// to broadcasting on the Hub directly.
func NewRedisRelay(redisClient *redis.Client, hub *Hub, channel string, m *metrics.ClinicMetrics, logger *logging.Logger) *RedisRelay {
	if redisClient == nil || hub == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisRelay{
		redis:   redisClient,
		hub:     hub,
		channel: channel,
		tracer:  otel.Tracer("clinic.internal.realtime"),
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Channel returns the Redis channel the relay uses.
func (r *RedisRelay) Channel() string {
	return r.channel
}

// Broadcast publishes evt. The count is the number of relay subscribers
// (instances) that received it, not the number of sessions.
func (r *RedisRelay) Broadcast(ctx context.Context, evt Event) (int, error) {
	frame, err := EncodeFrame(evt, r.now())
	if err != nil {
		r.metrics.ObserveBroadcast(evt.Name, 0, err)
		return 0, err
	}

	ctx, span := r.tracer.Start(ctx, "realtime.relay.publish")
	defer span.End()
	span.SetAttributes(attribute.String("realtime.event", evt.Name))

	receivers, err := r.redis.Publish(ctx, r.channel, frame).Result()
	if err != nil {
		span.RecordError(err)
		r.metrics.ObserveBroadcast(evt.Name, 0, err)
		return 0, fmt.Errorf("realtime: publish %s: %w", evt.Name, err)
	}
	r.metrics.ObserveBroadcast(evt.Name, int(receivers), nil)
	return int(receivers), nil
}

// Run subscribes to the channel and delivers frames to the local Hub until
// ctx is cancelled. The ready channel, if not nil, is closed once the
// subscription is confirmed.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.redis.Subscribe(ctx, r.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		if ready != nil {
			close(ready)
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("realtime: subscribe %s: %w", r.channel, err)
	}
	if ready != nil {
		close(ready)
	}
	r.logger.Info("realtime: relay subscribed", "channel", r.channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			delivered := r.hub.Deliver([]byte(msg.Payload))
			r.logger.Debug("realtime: relayed frame", "delivered", delivered)
		}
	}
}
