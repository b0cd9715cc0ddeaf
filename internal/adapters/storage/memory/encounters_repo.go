package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"patient-access/internal/domain/encounters"
	"patient-access/internal/platform/apperr"
)

type encounterRepo struct {
	mu   sync.RWMutex
	byID map[string]encounters.Encounter
}

func NewEncounterRepo() encounters.Repository {
	return &encounterRepo{
		byID: make(map[string]encounters.Encounter),
	}
}

func (r *encounterRepo) Create(ctx context.Context, e encounters.Encounter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		return errors.New("encounter id required")
	}
	if _, exists := r.byID[e.ID]; exists {
		return errors.New("encounter already exists")
	}
	r.byID[e.ID] = e
	return nil
}

func (r *encounterRepo) GetByID(ctx context.Context, id string) (encounters.Encounter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[id]
	if !ok {
		return encounters.Encounter{}, apperr.ErrNotFound
	}
	return e, nil
}

func (r *encounterRepo) ListByPatient(ctx context.Context, patientID string, filter encounters.ListFilter) ([]encounters.Encounter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	out := make([]encounters.Encounter, 0)
	for _, e := range r.byID {
		if e.PatientID != patientID || !filter.Matches(e) {
			continue
		}
		out = append(out, e)
	}

	// Más reciente primero por occurred_at
	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *encounterRepo) Finish(ctx context.Context, id string, f encounters.Finish) (encounters.Encounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return encounters.Encounter{}, apperr.ErrNotFound
	}
	if e.Status != encounters.StatusInProgress {
		return encounters.Encounter{}, encounters.ErrAlreadyFinished
	}
	at := f.At
	e.Status = encounters.StatusFinished
	e.FinishedAt = &at
	if f.Diagnosis != "" {
		e.Diagnosis = f.Diagnosis
	}
	if f.Notes != "" {
		e.Notes = f.Notes
	}
	r.byID[id] = e
	return e, nil
}
