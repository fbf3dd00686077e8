package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore stores notifications in the notifications table.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("notifications: db required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO notifications (id, type, message, appointment_id, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.Exec(ctx, query, n.ID, string(n.Type), n.Message, nullableID(n.AppointmentID), n.Read, n.CreatedAt); err != nil {
		return fmt.Errorf("notifications: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Notification, error) {
	query := `
		SELECT id, type, message, appointment_id, read, created_at
		FROM notifications
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("notifications: list: %w", err)
	}
	defer rows.Close()

	out := make([]*Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("notifications: scan: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notifications: list rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, id string) (*Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotificationNotFound
	}
	query := `
		UPDATE notifications SET read = TRUE
		WHERE id = $1
		RETURNING id, type, message, appointment_id, read, created_at
	`
	n, err := scanNotification(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("notifications: mark read: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) MarkAllRead(ctx context.Context) (int64, error) {
	ct, err := s.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE read = FALSE`)
	if err != nil {
		return 0, fmt.Errorf("notifications: mark all read: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (s *PostgresStore) CountUnread(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE read = FALSE`).Scan(&count); err != nil {
		return 0, fmt.Errorf("notifications: count unread: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("notifications: delete older than: %w", err)
	}
	return ct.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var (
		n             Notification
		typ           string
		appointmentID *string
	)
	if err := row.Scan(&n.ID, &typ, &n.Message, &appointmentID, &n.Read, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.Type = Type(typ)
	if appointmentID != nil {
		n.AppointmentID = *appointmentID
	}
	return &n, nil
}

func nullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
