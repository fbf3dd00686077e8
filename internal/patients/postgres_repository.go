package patients

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PostgresRepository stores patients and their visits in Postgres through
// database/sql (pgx stdlib driver).
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository wires a repository to an open database handle.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	if db == nil {
		panic("patients: sql db required")
	}
	return &PostgresRepository{db: db}
}

const patientColumns = `id, full_name, phone, email, age, gender, address, onboarded_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(row rowScanner) (*Patient, error) {
	var (
		p       Patient
		email   sql.NullString
		age     sql.NullInt32
		gender  sql.NullString
		address sql.NullString
	)
	if err := row.Scan(&p.ID, &p.FullName, &p.Phone, &email, &age, &gender, &address, &p.OnboardedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Email = email.String
	p.Gender = Gender(gender.String)
	p.Address = address.String
	if age.Valid {
		v := int(age.Int32)
		p.Age = &v
	}
	return &p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, p *Patient) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	query := `
		INSERT INTO patients (id, full_name, phone, email, age, gender, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING onboarded_at, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.FullName, p.Phone, nullString(p.Email), nullAge(p.Age), nullString(string(p.Gender)), nullString(p.Address),
	).Scan(&p.OnboardedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("patients: insert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, p *Patient) error {
	query := `
		UPDATE patients
		SET full_name = $2, phone = $3, email = $4, age = $5, gender = $6, address = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.FullName, p.Phone, nullString(p.Email), nullAge(p.Age), nullString(string(p.Gender)), nullString(p.Address),
	).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPatientNotFound
	}
	if err != nil {
		return fmt.Errorf("patients: update: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Patient, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrPatientNotFound
	}
	return r.getOne(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*Patient, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrPatientNotFound
	}
	return r.getOne(ctx, `SELECT `+patientColumns+` FROM patients WHERE email = $1 ORDER BY created_at ASC LIMIT 1`, email)
}

func (r *PostgresRepository) FindByEmailOrPhone(ctx context.Context, email, phone string) (*Patient, error) {
	email = NormalizeEmail(email)
	phone = strings.TrimSpace(phone)
	return r.getOne(ctx, `SELECT `+patientColumns+` FROM patients
		WHERE ($1 <> '' AND email = $1) OR ($2 <> '' AND phone = $2)
		ORDER BY created_at ASC LIMIT 1`, email, phone)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*Patient, error) {
	p, err := scanPatient(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patients: select: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Patient, int, error) {
	filter = filter.normalized()
	where := ""
	args := []any{}
	if filter.Search != "" {
		where = ` WHERE full_name ILIKE $1 OR email ILIKE $1 OR phone ILIKE $1`
		args = append(args, likePattern(filter.Search))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patients: count: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM patients%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		patientColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset())
	out, err := r.queryPatients(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *PostgresRepository) Search(ctx context.Context, query string, limit int) ([]*Patient, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*Patient{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return r.queryPatients(ctx, `SELECT `+patientColumns+` FROM patients
		WHERE full_name ILIKE $1 OR email ILIKE $1 OR phone ILIKE $1
		ORDER BY full_name ASC LIMIT $2`, likePattern(query), limit)
}

func (r *PostgresRepository) queryPatients(ctx context.Context, query string, args ...any) ([]*Patient, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("patients: query: %w", err)
	}
	defer rows.Close()

	out := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("patients: scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("patients: rows: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) AddVisit(ctx context.Context, patientID string, visit *Visit) error {
	if visit.ID == "" {
		visit.ID = uuid.New().String()
	}
	var prescription []byte
	if visit.Prescription != nil {
		raw, err := json.Marshal(visit.Prescription)
		if err != nil {
			return fmt.Errorf("patients: encode prescription: %w", err)
		}
		prescription = raw
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("patients: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE patients SET updated_at = now() WHERE id = $1`, patientID)
	if err != nil {
		return fmt.Errorf("patients: touch patient: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPatientNotFound
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO patient_visits (id, patient_id, problem, diagnosis, prescription, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING visit_date`,
		visit.ID, patientID, visit.Problem, visit.Diagnosis, prescription, nullString(visit.CreatedBy),
	).Scan(&visit.Date)
	if err != nil {
		return fmt.Errorf("patients: insert visit: %w", err)
	}
	visit.PatientID = patientID
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("patients: commit visit: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListVisits(ctx context.Context, patientID string, offset, limit int) ([]Visit, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patient_visits WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patients: count visits: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, visit_date, problem, diagnosis, prescription, created_by
		FROM patient_visits
		WHERE patient_id = $1
		ORDER BY visit_date DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("patients: list visits: %w", err)
	}
	defer rows.Close()

	visits := []Visit{}
	for rows.Next() {
		var (
			v            Visit
			prescription []byte
			createdBy    sql.NullString
		)
		if err := rows.Scan(&v.ID, &v.Date, &v.Problem, &v.Diagnosis, &prescription, &createdBy); err != nil {
			return nil, 0, fmt.Errorf("patients: scan visit: %w", err)
		}
		if len(prescription) > 0 {
			var p Prescription
			if err := json.Unmarshal(prescription, &p); err != nil {
				return nil, 0, fmt.Errorf("patients: decode prescription: %w", err)
			}
			v.Prescription = &p
		}
		v.PatientID = patientID
		v.CreatedBy = createdBy.String
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("patients: visit rows: %w", err)
	}
	return visits, total, nil
}

func likePattern(q string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(q) + "%"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullAge(age *int) sql.NullInt32 {
	if age == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*age), Valid: true}
}
