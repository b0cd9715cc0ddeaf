package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"patient-access/internal/domain/patients"
	"patient-access/internal/platform/apperr"
)

type PatientsRepo struct {
	db *sql.DB
}

func NewPatientsRepo(db *sql.DB) *PatientsRepo {
	return &PatientsRepo{db: db}
}

const patientColumns = `
	id, user_id, digital_identifier,
	full_name, birth_date, sex, blood_type, notes,
	created_at, updated_at`

func scanPatient(row rowScanner) (patients.Patient, error) {
	var p patients.Patient
	var sex string
	var birth sql.NullTime
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.DigitalIdentifier,
		&p.FullName,
		&birth,
		&sex,
		&p.BloodType,
		&p.Notes,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return patients.Patient{}, err
	}
	p.Sex = patients.Sex(sex)
	p.BirthDate = fromNullTime(birth)
	return p, nil
}

func (r *PatientsRepo) Create(ctx context.Context, p patients.Patient) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		p.ID,
		p.UserID,
		p.DigitalIdentifier,
		p.FullName,
		toNullTime(p.BirthDate),
		string(p.Sex),
		p.BloodType,
		p.Notes,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return patients.ErrAlreadyRegistered
	}
	return err
}

func (r *PatientsRepo) Update(ctx context.Context, p patients.Patient) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE patients
		SET
			full_name = $2,
			birth_date = $3,
			sex = $4,
			blood_type = $5,
			notes = $6,
			updated_at = $7
		WHERE id = $1
	`,
		p.ID,
		p.FullName,
		toNullTime(p.BirthDate),
		string(p.Sex),
		p.BloodType,
		p.Notes,
		p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *PatientsRepo) GetByID(ctx context.Context, id string) (patients.Patient, error) {
	return r.getBy(ctx, "id", id)
}

func (r *PatientsRepo) GetByUserID(ctx context.Context, userID string) (patients.Patient, error) {
	return r.getBy(ctx, "user_id", userID)
}

func (r *PatientsRepo) GetByDigitalIdentifier(ctx context.Context, digitalIdentifier string) (patients.Patient, error) {
	return r.getBy(ctx, "digital_identifier", digitalIdentifier)
}

// column viene siempre de las constantes de arriba, nunca del request.
func (r *PatientsRepo) getBy(ctx context.Context, column, value string) (patients.Patient, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return patients.Patient{}, apperr.ErrNotFound
	}
	p, err := scanPatient(r.db.QueryRowContext(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE `+column+` = $1`, value))
	if errors.Is(err, sql.ErrNoRows) {
		return patients.Patient{}, apperr.ErrNotFound
	}
	return p, err
}
