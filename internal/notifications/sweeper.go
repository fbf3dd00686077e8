package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/wolfman30/clinic-crm/pkg/logging"
)

const (
	defaultSweepInterval = 24 * time.Hour
	sweepTimeout         = 2 * time.Minute
)

type cleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

type sweepTask struct {
	name string
	run  func(ctx context.Context) error
}

// RetentionSweeper runs Cleanup on a fixed interval outside the request path.
// Extra housekeeping tasks registered with WithTask run in the same pass.
type RetentionSweeper struct {
	svc           cleaner
	retentionDays int
	interval      time.Duration
	tasks         []sweepTask
	scheduler     *gocron.Scheduler
	logger        *logging.Logger
}

func NewRetentionSweeper(svc cleaner, retentionDays int, interval time.Duration, logger *logging.Logger) *RetentionSweeper {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &RetentionSweeper{
		svc:           svc,
		retentionDays: retentionDays,
		interval:      interval,
		scheduler:     gocron.NewScheduler(time.UTC),
		logger:        logger,
	}
}

// WithTask adds a housekeeping task to every sweep. Call before Start.
func (s *RetentionSweeper) WithTask(name string, run func(ctx context.Context) error) *RetentionSweeper {
	if run != nil {
		s.tasks = append(s.tasks, sweepTask{name: name, run: run})
	}
	return s
}

// Start schedules the sweep and returns immediately. The first run happens
// right away.
func (s *RetentionSweeper) Start() error {
	s.scheduler.SingletonModeAll()
	if _, err := s.scheduler.Every(s.interval).Do(s.sweep); err != nil {
		return fmt.Errorf("notifications: schedule retention sweep: %w", err)
	}
	s.scheduler.StartAsync()
	s.logger.Info("notification retention sweep scheduled", "interval", s.interval.String(), "retention_days", s.retentionDays)
	return nil
}

// Stop halts the scheduler. Runs already in flight finish on their own.
func (s *RetentionSweeper) Stop() {
	s.scheduler.Stop()
}

func (s *RetentionSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := s.svc.Cleanup(ctx, s.retentionDays); err != nil {
		s.logger.Error("notification retention sweep failed", "error", err)
	}
	for _, task := range s.tasks {
		if err := task.run(ctx); err != nil {
			s.logger.Error("retention sweep task failed", "task", task.name, "error", err)
		}
	}
}
