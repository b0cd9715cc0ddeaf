package postgres

import (
	"context"
	"database/sql"

	"patient-access/internal/domain/audit"
	"patient-access/internal/ports/auditlog"
)

// AuditRepo solo inserta y lee; no hay UPDATE ni DELETE sobre audit_log.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Append(ctx context.Context, rec audit.Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (
			id, patient_id, actor_user_id, actor_role, organization_id,
			action, resource_type, resource_id, outcome, detail,
			ip_address, user_agent, occurred_at, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		rec.ID,
		rec.PatientID,
		rec.ActorUserID,
		rec.ActorRole,
		rec.OrganizationID,
		rec.Action,
		rec.ResourceType,
		rec.ResourceID,
		string(rec.Outcome),
		rec.Detail,
		rec.IPAddress,
		rec.UserAgent,
		rec.OccurredAt,
		rec.RecordedAt,
	)
	return err
}

func (r *AuditRepo) ListByPatient(ctx context.Context, patientID string, limit int) ([]audit.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id, patient_id, actor_user_id, actor_role, organization_id,
			action, resource_type, resource_id, outcome, detail,
			ip_address, user_agent, occurred_at, recorded_at
		FROM audit_log
		WHERE patient_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]audit.Record, 0)
	for rows.Next() {
		var rec audit.Record
		var outcome string
		if err := rows.Scan(
			&rec.ID,
			&rec.PatientID,
			&rec.ActorUserID,
			&rec.ActorRole,
			&rec.OrganizationID,
			&rec.Action,
			&rec.ResourceType,
			&rec.ResourceID,
			&outcome,
			&rec.Detail,
			&rec.IPAddress,
			&rec.UserAgent,
			&rec.OccurredAt,
			&rec.RecordedAt,
		); err != nil {
			return nil, err
		}
		rec.Outcome = auditlog.Outcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}
