package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

// PostgresRepository stores appointments in Postgres.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a repository backed by a pgx pool (or any DB).
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("appointments: db required")
	}
	return &PostgresRepository{db: db}
}

const selectColumns = `
	SELECT id, patient_id, patient_name, patient_email, patient_phone, message, status,
	       appointment_date, appointment_time, type, notes, external_event_id,
	       correlation_token, source, created_at, updated_at
	FROM appointments`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a          Appointment
		patientID  *string
		apptTime   *string
		externalID *string
		token      *string
		status     string
		typ        string
		source     string
	)
	if err := row.Scan(
		&a.ID, &patientID, &a.PatientInfo.Name, &a.PatientInfo.Email, &a.PatientInfo.Phone,
		&a.Message, &status, &a.Date, &apptTime, &typ, &a.Notes, &externalID,
		&token, &source, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.Type = Type(typ)
	a.Source = Source(source)
	a.PatientID = deref(patientID)
	a.Time = deref(apptTime)
	a.ExternalEventID = deref(externalID)
	a.CorrelationToken = deref(token)
	return &a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now

	_, err := r.db.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, patient_name, patient_email, patient_phone, message, status,
			appointment_date, appointment_time, type, notes, external_event_id, correlation_token, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		appt.ID, nullable(appt.PatientID), appt.PatientInfo.Name, appt.PatientInfo.Email, appt.PatientInfo.Phone,
		appt.Message, string(appt.Status), appt.Date, nullable(appt.Time), string(appt.Type), appt.Notes,
		nullable(appt.ExternalEventID), nullable(appt.CorrelationToken), string(appt.Source), appt.CreatedAt, appt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, appt *Appointment) error {
	appt.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET status = $2, appointment_date = $3, appointment_time = $4, notes = $5,
		    external_event_id = $6, patient_id = $7, updated_at = $8
		WHERE id = $1`,
		appt.ID, string(appt.Status), appt.Date, nullable(appt.Time), appt.Notes,
		nullable(appt.ExternalEventID), nullable(appt.PatientID), appt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("appointments: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrAppointmentNotFound
	}
	return r.one(ctx, selectColumns+` WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*Appointment, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	out := make(map[string]*Appointment, len(valid))
	if len(valid) == 0 {
		return out, nil
	}
	items, err := r.many(ctx, selectColumns+` WHERE id = ANY($1)`, valid)
	if err != nil {
		return nil, err
	}
	for _, a := range items {
		out[a.ID] = a
	}
	return out, nil
}

func (r *PostgresRepository) FindByExternalID(ctx context.Context, externalID string) (*Appointment, error) {
	if externalID == "" {
		return nil, ErrAppointmentNotFound
	}
	return r.one(ctx, selectColumns+` WHERE external_event_id = $1`, externalID)
}

func (r *PostgresRepository) FindByCorrelationToken(ctx context.Context, token string) (*Appointment, error) {
	if token == "" {
		return nil, ErrAppointmentNotFound
	}
	return r.one(ctx, selectColumns+` WHERE correlation_token = $1`, token)
}

func (r *PostgresRepository) LatestPendingByEmail(ctx context.Context, email string) (*Appointment, error) {
	return r.one(ctx, selectColumns+` WHERE patient_email = $1 AND status = 'pending' ORDER BY created_at DESC LIMIT 1`, email)
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conds = append(conds, fmt.Sprintf("appointment_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conds = append(conds, fmt.Sprintf("appointment_date < $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("appointments: count: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`%s%s
		ORDER BY appointment_date ASC NULLS LAST, appointment_time ASC NULLS LAST, created_at DESC
		LIMIT $%d OFFSET $%d`, selectColumns, where, len(args)-1, len(args))
	items, err := r.many(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PostgresRepository) ListUpcoming(ctx context.Context, now time.Time, limit int) ([]*Appointment, error) {
	return r.many(ctx, selectColumns+`
		WHERE status = 'pending' OR (status = 'scheduled' AND appointment_date >= $1)
		ORDER BY CASE WHEN status = 'pending' THEN 0 ELSE 1 END,
		         CASE WHEN status = 'pending' THEN created_at END DESC,
		         appointment_date ASC, appointment_time ASC
		LIMIT $2`, now, limit)
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*Appointment, error) {
	a, err := scanAppointment(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: select: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) many(ctx context.Context, query string, args ...any) ([]*Appointment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: query: %w", err)
	}
	defer rows.Close()

	out := []*Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows: %w", err)
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
