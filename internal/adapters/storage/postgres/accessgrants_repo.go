package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/platform/apperr"
)

type AccessGrantsRepo struct {
	db *sql.DB
}

func NewAccessGrantsRepo(db *sql.DB) *AccessGrantsRepo {
	return &AccessGrantsRepo{db: db}
}

const grantColumns = `
	id, patient_id, organization_id, requesting_practitioner_id,
	status,
	can_view_medical_history, can_view_prescriptions, can_create_encounters, can_view_audit_logs,
	time_window_hours,
	created_at, updated_at, granted_at, expires_at, revoked_at,
	reason, ip_address, user_agent, device_info`

func scanGrant(row rowScanner) (accessgrants.Grant, error) {
	var g accessgrants.Grant
	var status string
	var grantedAt, revokedAt sql.NullTime

	if err := row.Scan(
		&g.ID,
		&g.PatientID,
		&g.OrganizationID,
		&g.RequestingPractitionerID,
		&status,
		&g.Scope.CanViewMedicalHistory,
		&g.Scope.CanViewPrescriptions,
		&g.Scope.CanCreateEncounters,
		&g.Scope.CanViewAuditLogs,
		&g.TimeWindowHours,
		&g.CreatedAt,
		&g.UpdatedAt,
		&grantedAt,
		&g.ExpiresAt,
		&revokedAt,
		&g.Reason,
		&g.RequestMetadata.IPAddress,
		&g.RequestMetadata.UserAgent,
		&g.RequestMetadata.DeviceInfo,
	); err != nil {
		return accessgrants.Grant{}, err
	}

	g.Status = accessgrants.Status(status)
	g.GrantedAt = fromNullTime(grantedAt)
	g.RevokedAt = fromNullTime(revokedAt)
	return g, nil
}

func (r *AccessGrantsRepo) Create(ctx context.Context, g accessgrants.Grant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO access_grants (`+grantColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`,
		g.ID,
		g.PatientID,
		g.OrganizationID,
		g.RequestingPractitionerID,
		string(g.Status),
		g.Scope.CanViewMedicalHistory,
		g.Scope.CanViewPrescriptions,
		g.Scope.CanCreateEncounters,
		g.Scope.CanViewAuditLogs,
		g.TimeWindowHours,
		g.CreatedAt,
		g.UpdatedAt,
		toNullTime(g.GrantedAt),
		g.ExpiresAt,
		toNullTime(g.RevokedAt),
		g.Reason,
		g.RequestMetadata.IPAddress,
		g.RequestMetadata.UserAgent,
		g.RequestMetadata.DeviceInfo,
	)
	return err
}

func (r *AccessGrantsRepo) UpdatePending(ctx context.Context, g accessgrants.Grant) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE access_grants
		SET
			can_view_medical_history = $2,
			can_view_prescriptions = $3,
			can_create_encounters = $4,
			can_view_audit_logs = $5,
			time_window_hours = $6,
			updated_at = $7,
			expires_at = $8,
			ip_address = $9,
			user_agent = $10,
			device_info = $11
		WHERE id = $1 AND status = 'PENDING'
	`,
		g.ID,
		g.Scope.CanViewMedicalHistory,
		g.Scope.CanViewPrescriptions,
		g.Scope.CanCreateEncounters,
		g.Scope.CanViewAuditLogs,
		g.TimeWindowHours,
		g.UpdatedAt,
		g.ExpiresAt,
		g.RequestMetadata.IPAddress,
		g.RequestMetadata.UserAgent,
		g.RequestMetadata.DeviceInfo,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return accessgrants.ErrStateConflict
	}
	return nil
}

func (r *AccessGrantsRepo) GetByID(ctx context.Context, id string) (accessgrants.Grant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return accessgrants.Grant{}, apperr.ErrNotFound
	}

	g, err := scanGrant(r.db.QueryRowContext(ctx, `SELECT `+grantColumns+` FROM access_grants WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return accessgrants.Grant{}, apperr.ErrNotFound
	}
	return g, err
}

func (r *AccessGrantsRepo) ListByPatient(ctx context.Context, patientID string) ([]accessgrants.Grant, error) {
	return r.query(ctx, `SELECT `+grantColumns+` FROM access_grants WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
}

func (r *AccessGrantsRepo) ListByPractitioner(ctx context.Context, practitionerID string) ([]accessgrants.Grant, error) {
	return r.query(ctx, `SELECT `+grantColumns+` FROM access_grants WHERE requesting_practitioner_id = $1 ORDER BY created_at DESC`, practitionerID)
}

func (r *AccessGrantsRepo) FindPending(ctx context.Context, patientID, organizationID, practitionerID string) ([]accessgrants.Grant, error) {
	return r.query(ctx, `
		SELECT `+grantColumns+`
		FROM access_grants
		WHERE patient_id = $1
		  AND organization_id = $2
		  AND requesting_practitioner_id = $3
		  AND status = 'PENDING'
		ORDER BY updated_at DESC
	`, patientID, organizationID, practitionerID)
}

func (r *AccessGrantsRepo) FindActive(ctx context.Context, patientID, organizationID string, now time.Time) ([]accessgrants.Grant, error) {
	return r.query(ctx, `
		SELECT `+grantColumns+`
		FROM access_grants
		WHERE patient_id = $1
		  AND organization_id = $2
		  AND status = 'ACTIVE'
		  AND expires_at > $3
		ORDER BY expires_at DESC
	`, patientID, organizationID, now)
}

// Transition es un único UPDATE condicional; si otra decisión ganó antes, no matchea ninguna fila.
func (r *AccessGrantsRepo) Transition(ctx context.Context, t accessgrants.Transition) (accessgrants.Grant, error) {
	from := make([]string, 0, len(t.From))
	for _, s := range t.From {
		from = append(from, string(s))
	}

	g, err := scanGrant(r.db.QueryRowContext(ctx, `
		UPDATE access_grants
		SET
			status = $5,
			updated_at = $4,
			granted_at = COALESCE($6, granted_at),
			expires_at = COALESCE($7, expires_at),
			revoked_at = COALESCE($8, revoked_at),
			reason = CASE WHEN $9::text = '' THEN reason ELSE $9::text END
		WHERE id = $1
		  AND patient_id = $2
		  AND status = ANY($3)
		  AND (status <> 'ACTIVE' OR expires_at > $4)
		RETURNING `+grantColumns,
		t.GrantID,
		t.PatientID,
		from,
		t.At,
		string(t.To),
		toNullTime(t.GrantedAt),
		toNullTime(t.ExpiresAt),
		toNullTime(t.RevokedAt),
		t.Reason,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return accessgrants.Grant{}, accessgrants.ErrStateConflict
	}
	return g, err
}

func (r *AccessGrantsRepo) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE access_grants
		SET status = 'EXPIRED', updated_at = $1
		WHERE status = 'ACTIVE' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *AccessGrantsRepo) CountByStatus(ctx context.Context) (map[accessgrants.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM access_grants GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[accessgrants.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[accessgrants.Status(status)] = n
	}
	return out, rows.Err()
}

func (r *AccessGrantsRepo) query(ctx context.Context, q string, args ...any) ([]accessgrants.Grant, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]accessgrants.Grant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
