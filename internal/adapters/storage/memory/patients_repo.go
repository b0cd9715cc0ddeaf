package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"patient-access/internal/domain/patients"
	"patient-access/internal/platform/apperr"
)

type patientRepo struct {
	mu     sync.RWMutex
	byID   map[string]patients.Patient
	byUser map[string]string
	byDID  map[string]string
}

func NewPatientRepo() patients.Repository {
	return &patientRepo{
		byID:   make(map[string]patients.Patient),
		byUser: make(map[string]string),
		byDID:  make(map[string]string),
	}
}

func (r *patientRepo) Create(ctx context.Context, p patients.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(p.ID) == "" {
		return errors.New("patient id required")
	}
	if _, exists := r.byID[p.ID]; exists {
		return errors.New("patient already exists")
	}
	if _, exists := r.byUser[p.UserID]; exists {
		return patients.ErrAlreadyRegistered
	}
	if _, exists := r.byDID[p.DigitalIdentifier]; exists {
		return errors.New("digital identifier already taken")
	}
	r.byID[p.ID] = p
	r.byUser[p.UserID] = p.ID
	r.byDID[p.DigitalIdentifier] = p.ID
	return nil
}

// Update no toca UserID ni DigitalIdentifier; los índices quedan como estaban.
func (r *patientRepo) Update(ctx context.Context, p patients.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, exists := r.byID[p.ID]
	if !exists {
		return apperr.ErrNotFound
	}
	p.UserID = cur.UserID
	p.DigitalIdentifier = cur.DigitalIdentifier
	r.byID[p.ID] = p
	return nil
}

func (r *patientRepo) GetByID(ctx context.Context, id string) (patients.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return patients.Patient{}, apperr.ErrNotFound
	}
	return p, nil
}

func (r *patientRepo) GetByUserID(ctx context.Context, userID string) (patients.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUser[userID]
	if !ok {
		return patients.Patient{}, apperr.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *patientRepo) GetByDigitalIdentifier(ctx context.Context, digitalIdentifier string) (patients.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byDID[digitalIdentifier]
	if !ok {
		return patients.Patient{}, apperr.ErrNotFound
	}
	return r.byID[id], nil
}
