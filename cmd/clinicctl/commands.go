package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-crm/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-crm/internal/config"
	"github.com/wolfman30/clinic-crm/internal/notifications"
	"github.com/wolfman30/clinic-crm/internal/realtime"
	"github.com/wolfman30/clinic-crm/pkg/logging"
)

// cliEnv is what a command needs once configuration has been resolved.
type cliEnv struct {
	cfg           *appconfig.Config
	notifications *notifications.Service
	migrator      func() (*migrate.Migrate, error)
	close         func()
}

type envOpener func(ctx context.Context) (*cliEnv, error)

// openEnv connects to Postgres (and Redis when configured, so system
// notices reach connected dashboards).
func openEnv(ctx context.Context) (*cliEnv, error) {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("clinicctl")

	db, err := bootstrap.ConnectDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, errors.New("DATABASE_URL is required")
	}
	stores := bootstrap.BuildStores(db)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	var broadcaster realtime.Broadcaster
	if relay := realtime.NewRedisRelay(redisClient, realtime.NewHub(nil, logger), cfg.RealtimeChannel, nil, logger); relay != nil {
		broadcaster = relay
	}

	svc := notifications.NewService(stores.Notifications, broadcaster, stores.Appointments, logger).
		WithLocation(cfg.Location())

	return &cliEnv{
		cfg:           cfg,
		notifications: svc,
		migrator:      func() (*migrate.Migrate, error) { return bootstrap.NewMigrator(db.SQL) },
		close: func() {
			if redisClient != nil {
				_ = redisClient.Close()
			}
			db.Close()
		},
	}, nil
}

func newRootCmd(open envOpener) *cobra.Command {
	root := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Clinic operator commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCmd(open))
	root.AddCommand(notificationsCmd(open))
	return root
}

func withEnv(open envOpener, fn func(cmd *cobra.Command, env *cliEnv, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()
		return fn(cmd, env, args)
	}
}

func migrateCmd(open envOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withEnv(open, func(cmd *cobra.Command, env *cliEnv, _ []string) error {
			m, err := env.migrator()
			if err != nil {
				return err
			}
			defer func() { _, _ = m.Close() }()
			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate up: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations complete")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		RunE: withEnv(open, func(cmd *cobra.Command, env *cliEnv, _ []string) error {
			m, err := env.migrator()
			if err != nil {
				return err
			}
			defer func() { _, _ = m.Close() }()
			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				return nil
			}
			if err != nil {
				return fmt.Errorf("migrate status: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", version, dirty)
			return nil
		}),
	})

	return cmd
}

func notificationsCmd(open envOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Dashboard notification feed maintenance",
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete notifications older than the retention window",
		RunE: withEnv(open, func(cmd *cobra.Command, env *cliEnv, _ []string) error {
			days, _ := cmd.Flags().GetInt("days")
			if days <= 0 {
				days = env.cfg.NotificationRetentionDays
			}
			n, err := env.notifications.Cleanup(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d notifications older than %d days\n", n, effectiveDays(days))
			return nil
		}),
	}
	cleanupCmd.Flags().Int("days", 0, "Retention window in days (defaults to NOTIFICATION_RETENTION_DAYS)")
	cmd.AddCommand(cleanupCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "unread",
		Short: "Print the unread notification count",
		RunE: withEnv(open, func(cmd *cobra.Command, env *cliEnv, _ []string) error {
			n, err := env.notifications.UnreadCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "notice [message]",
		Short: "Post a system notice to the dashboard feed",
		Args:  cobra.MinimumNArgs(1),
		RunE: withEnv(open, func(cmd *cobra.Command, env *cliEnv, args []string) error {
			n, err := env.notifications.SystemNotice(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "posted notice %s\n", n.ID)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification as read",
		RunE: withEnv(open, func(cmd *cobra.Command, env *cliEnv, _ []string) error {
			n, err := env.notifications.MarkAllRead(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d notifications as read\n", n)
			return nil
		}),
	})

	return cmd
}

func effectiveDays(days int) int {
	if days <= 0 {
		return notifications.DefaultRetentionDays
	}
	return days
}
