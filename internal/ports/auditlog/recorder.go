package auditlog

import (
	"context"
	"time"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
)

// Entry es lo que los módulos emiten hacia el audit log.
// Vive en ports para que accessgrants/encounters/prescriptions no importen el módulo audit.
type Entry struct {
	PatientID      string
	ActorUserID    string
	ActorRole      string
	OrganizationID string

	Action       string
	ResourceType string
	ResourceID   string
	Outcome      Outcome
	Detail       string

	IPAddress string
	UserAgent string

	OccurredAt time.Time
}

// Recorder es best-effort: nunca devuelve error al llamador.
// Una falla al auditar no puede revertir ni bloquear la operación principal.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Nop no registra nada.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}
