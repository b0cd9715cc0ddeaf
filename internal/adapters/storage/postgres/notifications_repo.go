package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"patient-access/internal/domain/notifications"
	"patient-access/internal/platform/apperr"
)

type NotificationsRepo struct {
	db *sql.DB
}

func NewNotificationsRepo(db *sql.DB) *NotificationsRepo {
	return &NotificationsRepo{db: db}
}

const notificationColumns = `
	id, user_id, type, title, message,
	grant_id, patient_id, organization_id,
	created_at, read_at`

func scanNotification(row rowScanner) (notifications.Notification, error) {
	var n notifications.Notification
	var typ string
	var readAt sql.NullTime
	if err := row.Scan(
		&n.ID,
		&n.UserID,
		&typ,
		&n.Title,
		&n.Message,
		&n.GrantID,
		&n.PatientID,
		&n.OrganizationID,
		&n.CreatedAt,
		&readAt,
	); err != nil {
		return notifications.Notification{}, err
	}
	n.Type = notifications.Type(typ)
	n.ReadAt = fromNullTime(readAt)
	return n, nil
}

func (r *NotificationsRepo) Create(ctx context.Context, n notifications.Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		n.ID,
		n.UserID,
		string(n.Type),
		n.Title,
		n.Message,
		n.GrantID,
		n.PatientID,
		n.OrganizationID,
		n.CreatedAt,
		toNullTime(n.ReadAt),
	)
	return err
}

func (r *NotificationsRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]notifications.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR read_at IS NULL)
		ORDER BY created_at DESC
	`, userID, unreadOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]notifications.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationsRepo) MarkRead(ctx context.Context, id, userID string, at time.Time) (notifications.Notification, error) {
	n, err := scanNotification(r.db.QueryRowContext(ctx, `
		UPDATE notifications
		SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationColumns,
		id, userID, at,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return notifications.Notification{}, apperr.ErrNotFound
	}
	return n, err
}
