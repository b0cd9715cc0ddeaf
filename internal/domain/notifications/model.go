package notifications

import "time"

type Type string

const (
	TypeAccessRequested Type = "ACCESS_REQUESTED"
	TypeAccessApproved  Type = "ACCESS_APPROVED"
	TypeAccessDenied    Type = "ACCESS_DENIED"
	TypeAccessRevoked   Type = "ACCESS_REVOKED"
)

// Notification va a la bandeja de una cuenta (paciente o practitioner).
type Notification struct {
	ID     string
	UserID string

	Type    Type
	Title   string
	Message string

	GrantID        string
	PatientID      string
	OrganizationID string

	CreatedAt time.Time
	ReadAt    *time.Time
}

// Event es lo que se publica hacia afuera (broker) cuando se crea una notificación.
type Event struct {
	NotificationID string    `json:"notificationId"`
	UserID         string    `json:"userId"`
	Type           Type      `json:"type"`
	GrantID        string    `json:"grantId"`
	PatientID      string    `json:"patientId"`
	OrganizationID string    `json:"organizationId"`
	GrantStatus    string    `json:"grantStatus"`
	OccurredAt     time.Time `json:"occurredAt"`
}
