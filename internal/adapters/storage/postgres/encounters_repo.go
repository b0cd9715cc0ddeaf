package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"patient-access/internal/domain/encounters"
	"patient-access/internal/platform/apperr"
)

type EncountersRepo struct {
	db *sql.DB
}

func NewEncountersRepo(db *sql.DB) *EncountersRepo {
	return &EncountersRepo{db: db}
}

const encounterColumns = `
	id, patient_id, organization_id, attending_practitioner_id,
	type, status, reason, notes, diagnosis,
	occurred_at, recorded_at, finished_at`

func scanEncounter(row rowScanner) (encounters.Encounter, error) {
	var e encounters.Encounter
	var typ, status string
	var finished sql.NullTime
	if err := row.Scan(
		&e.ID,
		&e.PatientID,
		&e.OrganizationID,
		&e.AttendingPractitionerID,
		&typ,
		&status,
		&e.Reason,
		&e.Notes,
		&e.Diagnosis,
		&e.OccurredAt,
		&e.RecordedAt,
		&finished,
	); err != nil {
		return encounters.Encounter{}, err
	}
	e.Type = encounters.EncounterType(typ)
	e.Status = encounters.Status(status)
	e.FinishedAt = fromNullTime(finished)
	return e, nil
}

func (r *EncountersRepo) Create(ctx context.Context, e encounters.Encounter) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO encounters (`+encounterColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		e.ID,
		e.PatientID,
		e.OrganizationID,
		e.AttendingPractitionerID,
		string(e.Type),
		string(e.Status),
		e.Reason,
		e.Notes,
		e.Diagnosis,
		e.OccurredAt,
		e.RecordedAt,
		toNullTime(e.FinishedAt),
	)
	return err
}

func (r *EncountersRepo) GetByID(ctx context.Context, id string) (encounters.Encounter, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return encounters.Encounter{}, apperr.ErrNotFound
	}
	e, err := scanEncounter(r.db.QueryRowContext(ctx, `SELECT `+encounterColumns+` FROM encounters WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return encounters.Encounter{}, apperr.ErrNotFound
	}
	return e, err
}

func (r *EncountersRepo) ListByPatient(ctx context.Context, patientID string, filter encounters.ListFilter) ([]encounters.Encounter, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, nil
	}

	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + encounterColumns + ` FROM encounters WHERE patient_id = $1`)

	args := []any{patientID}
	argN := 2

	if len(filter.Types) > 0 {
		placeholders := make([]string, 0, len(filter.Types))
		for _, t := range filter.Types {
			placeholders = append(placeholders, fmt.Sprintf("$%d", argN))
			args = append(args, string(t))
			argN++
		}
		sb.WriteString(" AND type IN (" + strings.Join(placeholders, ",") + ")")
	}
	if filter.From != nil {
		sb.WriteString(fmt.Sprintf(" AND occurred_at >= $%d", argN))
		args = append(args, *filter.From)
		argN++
	}
	if filter.To != nil {
		sb.WriteString(fmt.Sprintf(" AND occurred_at <= $%d", argN))
		args = append(args, *filter.To)
		argN++
	}
	if filter.PractitionerID != "" {
		sb.WriteString(fmt.Sprintf(" AND attending_practitioner_id = $%d", argN))
		args = append(args, filter.PractitionerID)
		argN++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	sb.WriteString(" ORDER BY occurred_at DESC")
	sb.WriteString(fmt.Sprintf(" LIMIT $%d", argN))
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]encounters.Encounter, 0)
	for rows.Next() {
		e, err := scanEncounter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EncountersRepo) Finish(ctx context.Context, id string, f encounters.Finish) (encounters.Encounter, error) {
	e, err := scanEncounter(r.db.QueryRowContext(ctx, `
		UPDATE encounters
		SET
			status = 'FINISHED',
			finished_at = $2,
			diagnosis = CASE WHEN $3::text = '' THEN diagnosis ELSE $3::text END,
			notes = CASE WHEN $4::text = '' THEN notes ELSE $4::text END
		WHERE id = $1 AND status = 'IN_PROGRESS'
		RETURNING `+encounterColumns,
		id, f.At, f.Diagnosis, f.Notes,
	))
	if errors.Is(err, sql.ErrNoRows) {
		// no matcheó: o no existe o ya estaba cerrado
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return encounters.Encounter{}, getErr
		}
		return encounters.Encounter{}, encounters.ErrAlreadyFinished
	}
	return e, err
}
