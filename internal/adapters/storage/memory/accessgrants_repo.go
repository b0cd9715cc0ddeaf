package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/platform/apperr"
)

type grantRepo struct {
	mu   sync.RWMutex
	byID map[string]accessgrants.Grant
}

func NewAccessGrantsRepo() accessgrants.Repository {
	return &grantRepo{
		byID: make(map[string]accessgrants.Grant),
	}
}

func (r *grantRepo) Create(ctx context.Context, g accessgrants.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g.ID == "" {
		return errors.New("grant id required")
	}
	if _, exists := r.byID[g.ID]; exists {
		return errors.New("grant already exists")
	}
	r.byID[g.ID] = g
	return nil
}

func (r *grantRepo) UpdatePending(ctx context.Context, g accessgrants.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[g.ID]
	if !ok || cur.Status != accessgrants.StatusPending {
		return accessgrants.ErrStateConflict
	}
	g.Status = accessgrants.StatusPending
	g.CreatedAt = cur.CreatedAt
	r.byID[g.ID] = g
	return nil
}

func (r *grantRepo) GetByID(ctx context.Context, id string) (accessgrants.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.byID[id]
	if !ok {
		return accessgrants.Grant{}, apperr.ErrNotFound
	}
	return g, nil
}

func (r *grantRepo) ListByPatient(ctx context.Context, patientID string) ([]accessgrants.Grant, error) {
	return r.filter(func(g accessgrants.Grant) bool { return g.PatientID == patientID }), nil
}

func (r *grantRepo) ListByPractitioner(ctx context.Context, practitionerID string) ([]accessgrants.Grant, error) {
	return r.filter(func(g accessgrants.Grant) bool { return g.RequestingPractitionerID == practitionerID }), nil
}

func (r *grantRepo) FindPending(ctx context.Context, patientID, organizationID, practitionerID string) ([]accessgrants.Grant, error) {
	return r.filter(func(g accessgrants.Grant) bool {
		return g.Status == accessgrants.StatusPending &&
			g.PatientID == patientID &&
			g.OrganizationID == organizationID &&
			g.RequestingPractitionerID == practitionerID
	}), nil
}

func (r *grantRepo) FindActive(ctx context.Context, patientID, organizationID string, now time.Time) ([]accessgrants.Grant, error) {
	return r.filter(func(g accessgrants.Grant) bool {
		return g.PatientID == patientID &&
			g.OrganizationID == organizationID &&
			g.IsEffectivelyActive(now)
	}), nil
}

// Transition compara y escribe bajo el mismo lock: dos decisiones concurrentes
// sobre el mismo grant no pueden ganar las dos.
func (r *grantRepo) Transition(ctx context.Context, t accessgrants.Transition) (accessgrants.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[t.GrantID]
	if !ok || !t.Matches(cur) {
		return accessgrants.Grant{}, accessgrants.ErrStateConflict
	}
	next := t.Apply(cur)
	r.byID[next.ID] = next
	return next, nil
}

func (r *grantRepo) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, g := range r.byID {
		if g.Status == accessgrants.StatusActive && !now.Before(g.ExpiresAt) {
			g.Status = accessgrants.StatusExpired
			g.UpdatedAt = now
			r.byID[id] = g
			n++
		}
	}
	return n, nil
}

func (r *grantRepo) CountByStatus(ctx context.Context) (map[accessgrants.Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[accessgrants.Status]int)
	for _, g := range r.byID {
		out[g.Status]++
	}
	return out, nil
}

func (r *grantRepo) filter(keep func(accessgrants.Grant) bool) []accessgrants.Grant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]accessgrants.Grant, 0)
	for _, g := range r.byID {
		if keep(g) {
			out = append(out, g)
		}
	}
	return out
}
