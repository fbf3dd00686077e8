package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/clinic-crm/internal/config"
	"github.com/wolfman30/clinic-crm/internal/notifications"
)

type testEnv struct {
	svc    *notifications.Service
	closed int
}

func (e *testEnv) open(ctx context.Context) (*cliEnv, error) {
	return &cliEnv{
		cfg:           &appconfig.Config{NotificationRetentionDays: 14},
		notifications: e.svc,
		migrator: func() (*migrate.Migrate, error) {
			return nil, errors.New("no database")
		},
		close: func() { e.closed++ },
	}, nil
}

func newTestEnv() *testEnv {
	store := notifications.NewMemoryStore()
	return &testEnv{svc: notifications.NewService(store, nil, nil, nil)}
}

func execute(t *testing.T, open envOpener, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNoticeThenUnread(t *testing.T) {
	env := newTestEnv()

	out, err := execute(t, env.open, "notifications", "notice", "Clinic", "closes", "early")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "posted notice "))

	out, err = execute(t, env.open, "notifications", "unread")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = execute(t, env.open, "notifications", "read-all")
	require.NoError(t, err)
	assert.Equal(t, "marked 1 notifications as read\n", out)

	assert.Equal(t, 3, env.closed)
}

func TestCleanupUsesConfiguredRetention(t *testing.T) {
	env := newTestEnv()

	out, err := execute(t, env.open, "notifications", "cleanup")
	require.NoError(t, err)
	assert.Equal(t, "deleted 0 notifications older than 14 days\n", out)

	out, err = execute(t, env.open, "notifications", "cleanup", "--days", "7")
	require.NoError(t, err)
	assert.Equal(t, "deleted 0 notifications older than 7 days\n", out)
}

func TestNoticeRequiresMessage(t *testing.T) {
	env := newTestEnv()
	_, err := execute(t, env.open, "notifications", "notice")
	assert.Error(t, err)
	assert.Zero(t, env.closed)
}

func TestMigrateSurfacesMigratorErrors(t *testing.T) {
	env := newTestEnv()
	_, err := execute(t, env.open, "migrate", "status")
	assert.EqualError(t, err, "no database")
	assert.Equal(t, 1, env.closed)
}

func TestOpenEnvFailureStopsCommand(t *testing.T) {
	failing := func(ctx context.Context) (*cliEnv, error) {
		return nil, errors.New("DATABASE_URL is required")
	}
	_, err := execute(t, failing, "notifications", "unread")
	assert.EqualError(t, err, "DATABASE_URL is required")
}
