package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Querier is the subset of *pgxpool.Pool the directory reads through
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDirectory reads patients from the clinic's patients table.
// It never writes.
type PostgresDirectory struct {
	db     Querier
	logger *zap.Logger
}

// NewPostgresDirectory creates a directory backed by db, usually a *pgxpool.Pool
func NewPostgresDirectory(db Querier, logger *zap.Logger) *PostgresDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresDirectory{db: db, logger: logger}
}

const patientColumns = `
	id, name,
	COALESCE(birth_date::text, ''), COALESCE(email, ''), COALESCE(phone, ''),
	COALESCE(status, ''), COALESCE(referral_source, ''), COALESCE(anamnesis, ''),
	COALESCE(created_at::date::text, '')`

const patientOrder = ` ORDER BY created_at ASC, id ASC`

// Get returns the patient with the given id
func (d *PostgresDirectory) Get(ctx context.Context, id string) (Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`
	return d.one(ctx, query, id)
}

// First returns the earliest registered patient
func (d *PostgresDirectory) First(ctx context.Context) (Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients` + patientOrder + ` LIMIT 1`
	return d.one(ctx, query)
}

func (d *PostgresDirectory) one(ctx context.Context, query string, args ...any) (Patient, error) {
	p, err := scanPatient(d.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Patient{}, ErrNotFound
	}
	if err != nil {
		return Patient{}, fmt.Errorf("query patient: %w", err)
	}
	return p, nil
}

// List returns patients whose name contains query, ordered by creation
func (d *PostgresDirectory) List(ctx context.Context, query string) ([]Patient, error) {
	sql := `SELECT ` + patientColumns + ` FROM patients
		WHERE $1 = '' OR strpos(lower(name), lower($1)) > 0` + patientOrder

	rows, err := d.db.Query(ctx, sql, query)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	patients := []Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	d.logger.Debug("patients listed", zap.String("query", query), zap.Int("count", len(patients)))
	return patients, nil
}

func scanPatient(row pgx.Row) (Patient, error) {
	var p Patient
	var status string
	err := row.Scan(
		&p.ID, &p.Name,
		&p.BirthDate, &p.Email, &p.Phone,
		&status, &p.ReferralSource, &p.Anamnesis,
		&p.CreatedAt,
	)
	p.Status = Status(status)
	return p, err
}
