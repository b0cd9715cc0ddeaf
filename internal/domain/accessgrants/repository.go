package accessgrants

import (
	"context"
	"errors"
	"time"
)

// ErrStateConflict lo devuelven los repos cuando el update condicional no matcheó
// (el grant ya no está en un estado de From, no es del paciente, o no existe).
var ErrStateConflict = errors.New("grant state changed concurrently")

// Transition es un update condicional de un único documento:
//
//	WHERE id = GrantID AND patient_id = PatientID AND status IN From
//	  AND (status <> ACTIVE OR expires_at > At)
//
// Los campos puntero solo se escriben si no son nil.
type Transition struct {
	GrantID   string
	PatientID string
	From      []Status
	To        Status
	At        time.Time

	GrantedAt *time.Time
	ExpiresAt *time.Time
	RevokedAt *time.Time
	Reason    string
}

type Repository interface {
	Create(ctx context.Context, g Grant) error
	// UpdatePending refresca un grant PENDING (dedup). ErrStateConflict si ya no está PENDING.
	UpdatePending(ctx context.Context, g Grant) error
	GetByID(ctx context.Context, id string) (Grant, error)

	ListByPatient(ctx context.Context, patientID string) ([]Grant, error)
	ListByPractitioner(ctx context.Context, practitionerID string) ([]Grant, error)
	FindPending(ctx context.Context, patientID, organizationID, practitionerID string) ([]Grant, error)
	// FindActive devuelve grants con status ACTIVE y expires_at > now.
	FindActive(ctx context.Context, patientID, organizationID string, now time.Time) ([]Grant, error)

	Transition(ctx context.Context, t Transition) (Grant, error)
	// ExpireStale pasa a EXPIRED todo ACTIVE con expires_at <= now y devuelve cuántos.
	ExpireStale(ctx context.Context, now time.Time) (int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// Matches aplica el filtro de Transition en memoria. Lo usan el repo in-memory y los fakes de tests.
func (t Transition) Matches(g Grant) bool {
	if g.ID != t.GrantID || g.PatientID != t.PatientID {
		return false
	}
	allowed := false
	for _, st := range t.From {
		if g.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	if g.Status == StatusActive && !g.ExpiresAt.After(t.At) {
		return false
	}
	return true
}

// Apply devuelve g con los cambios de la transición.
func (t Transition) Apply(g Grant) Grant {
	g.Status = t.To
	g.UpdatedAt = t.At
	if t.GrantedAt != nil {
		at := *t.GrantedAt
		g.GrantedAt = &at
	}
	if t.ExpiresAt != nil {
		g.ExpiresAt = *t.ExpiresAt
	}
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		g.RevokedAt = &at
	}
	if t.Reason != "" {
		g.Reason = t.Reason
	}
	return g
}
