package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-crm/pkg/logging"
)

type stubCleaner struct {
	calls chan int
	err   error
}

func (c *stubCleaner) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	c.calls <- retentionDays
	return 0, c.err
}

func TestRetentionSweeperRunsOnStart(t *testing.T) {
	cleaner := &stubCleaner{calls: make(chan int, 4)}
	sweeper := NewRetentionSweeper(cleaner, 14, time.Hour, logging.Default())
	require.NoError(t, sweeper.Start())
	defer sweeper.Stop()

	select {
	case days := <-cleaner.calls:
		assert.Equal(t, 14, days)
	case <-time.After(3 * time.Second):
		t.Fatal("sweep did not run")
	}
}

func TestRetentionSweeperSurvivesFailures(t *testing.T) {
	cleaner := &stubCleaner{calls: make(chan int, 4), err: errors.New("db down")}
	sweeper := NewRetentionSweeper(cleaner, 30, 0, logging.Default())
	assert.Equal(t, defaultSweepInterval, sweeper.interval)
	require.NoError(t, sweeper.Start())
	defer sweeper.Stop()

	select {
	case <-cleaner.calls:
	case <-time.After(3 * time.Second):
		t.Fatal("sweep did not run")
	}
}

func TestRetentionSweeperRunsExtraTasks(t *testing.T) {
	cleaner := &stubCleaner{calls: make(chan int, 4), err: errors.New("db down")}
	ran := make(chan string, 4)
	sweeper := NewRetentionSweeper(cleaner, 30, time.Hour, logging.Default()).
		WithTask("processed_events", func(ctx context.Context) error {
			ran <- "processed_events"
			return nil
		}).
		WithTask("nil", nil)
	require.Len(t, sweeper.tasks, 1)
	require.NoError(t, sweeper.Start())
	defer sweeper.Stop()

	select {
	case name := <-ran:
		assert.Equal(t, "processed_events", name, "tasks run even when cleanup fails")
	case <-time.After(3 * time.Second):
		t.Fatal("extra task did not run")
	}
}
