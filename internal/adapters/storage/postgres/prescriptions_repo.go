package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"patient-access/internal/domain/prescriptions"
	"patient-access/internal/platform/apperr"
)

type PrescriptionsRepo struct {
	db *sql.DB
}

func NewPrescriptionsRepo(db *sql.DB) *PrescriptionsRepo {
	return &PrescriptionsRepo{db: db}
}

const prescriptionColumns = `
	id, encounter_id, patient_id, organization_id, prescriber_id,
	med_name, med_dosage, med_dose_unit, med_route, med_frequency,
	start_date, end_date, notes,
	status, created_at, dispensed_at, dispensed_by`

func scanPrescription(row rowScanner) (prescriptions.Prescription, error) {
	var p prescriptions.Prescription
	var status string
	var end, dispensed sql.NullTime
	if err := row.Scan(
		&p.ID,
		&p.EncounterID,
		&p.PatientID,
		&p.OrganizationID,
		&p.PrescriberID,
		&p.Medication.Name,
		&p.Medication.Dosage,
		&p.Medication.DoseUnit,
		&p.Medication.Route,
		&p.Medication.Frequency,
		&p.StartDate,
		&end,
		&p.Notes,
		&status,
		&p.CreatedAt,
		&dispensed,
		&p.DispensedBy,
	); err != nil {
		return prescriptions.Prescription{}, err
	}
	p.Status = prescriptions.Status(status)
	p.EndDate = fromNullTime(end)
	p.DispensedAt = fromNullTime(dispensed)
	return p, nil
}

func (r *PrescriptionsRepo) Create(ctx context.Context, p prescriptions.Prescription) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO prescriptions (`+prescriptionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		p.ID,
		p.EncounterID,
		p.PatientID,
		p.OrganizationID,
		p.PrescriberID,
		p.Medication.Name,
		p.Medication.Dosage,
		p.Medication.DoseUnit,
		p.Medication.Route,
		p.Medication.Frequency,
		p.StartDate,
		toNullTime(p.EndDate),
		p.Notes,
		string(p.Status),
		p.CreatedAt,
		toNullTime(p.DispensedAt),
		p.DispensedBy,
	)
	return err
}

func (r *PrescriptionsRepo) GetByID(ctx context.Context, id string) (prescriptions.Prescription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return prescriptions.Prescription{}, apperr.ErrNotFound
	}
	p, err := scanPrescription(r.db.QueryRowContext(ctx, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return prescriptions.Prescription{}, apperr.ErrNotFound
	}
	return p, err
}

func (r *PrescriptionsRepo) ListByPatient(ctx context.Context, patientID, prescriberID string) ([]prescriptions.Prescription, error) {
	return r.query(ctx, `
		SELECT `+prescriptionColumns+`
		FROM prescriptions
		WHERE patient_id = $1 AND ($2::text = '' OR prescriber_id = $2::text)
		ORDER BY created_at DESC
	`, patientID, prescriberID)
}

func (r *PrescriptionsRepo) ListByEncounter(ctx context.Context, encounterID string) ([]prescriptions.Prescription, error) {
	return r.query(ctx, `
		SELECT `+prescriptionColumns+`
		FROM prescriptions
		WHERE encounter_id = $1
		ORDER BY created_at DESC
	`, encounterID)
}

func (r *PrescriptionsRepo) MarkDispensed(ctx context.Context, id, pharmacistID string, at time.Time) (prescriptions.Prescription, error) {
	p, err := scanPrescription(r.db.QueryRowContext(ctx, `
		UPDATE prescriptions
		SET status = 'DISPENSED', dispensed_at = $2, dispensed_by = $3
		WHERE id = $1 AND status = 'ACTIVE'
		RETURNING `+prescriptionColumns,
		id, at, pharmacistID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return prescriptions.Prescription{}, getErr
		}
		return prescriptions.Prescription{}, prescriptions.ErrAlreadyDispensed
	}
	return p, err
}

func (r *PrescriptionsRepo) query(ctx context.Context, q string, args ...any) ([]prescriptions.Prescription, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]prescriptions.Prescription, 0)
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
