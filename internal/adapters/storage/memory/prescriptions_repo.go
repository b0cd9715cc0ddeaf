package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"patient-access/internal/domain/prescriptions"
	"patient-access/internal/platform/apperr"
)

type prescriptionRepo struct {
	mu   sync.RWMutex
	byID map[string]prescriptions.Prescription
}

func NewPrescriptionRepo() prescriptions.Repository {
	return &prescriptionRepo{
		byID: make(map[string]prescriptions.Prescription),
	}
}

func (r *prescriptionRepo) Create(ctx context.Context, p prescriptions.Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == "" {
		return errors.New("prescription id required")
	}
	if _, exists := r.byID[p.ID]; exists {
		return errors.New("prescription already exists")
	}
	r.byID[p.ID] = p
	return nil
}

func (r *prescriptionRepo) GetByID(ctx context.Context, id string) (prescriptions.Prescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return prescriptions.Prescription{}, apperr.ErrNotFound
	}
	return p, nil
}

func (r *prescriptionRepo) ListByPatient(ctx context.Context, patientID, prescriberID string) ([]prescriptions.Prescription, error) {
	return r.list(func(p prescriptions.Prescription) bool {
		return p.PatientID == patientID && (prescriberID == "" || p.PrescriberID == prescriberID)
	}), nil
}

func (r *prescriptionRepo) ListByEncounter(ctx context.Context, encounterID string) ([]prescriptions.Prescription, error) {
	return r.list(func(p prescriptions.Prescription) bool { return p.EncounterID == encounterID }), nil
}

func (r *prescriptionRepo) MarkDispensed(ctx context.Context, id, pharmacistID string, at time.Time) (prescriptions.Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return prescriptions.Prescription{}, apperr.ErrNotFound
	}
	if p.Status != prescriptions.StatusActive {
		return prescriptions.Prescription{}, prescriptions.ErrAlreadyDispensed
	}
	p.Status = prescriptions.StatusDispensed
	p.DispensedAt = &at
	p.DispensedBy = pharmacistID
	r.byID[id] = p
	return p, nil
}

func (r *prescriptionRepo) list(keep func(prescriptions.Prescription) bool) []prescriptions.Prescription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]prescriptions.Prescription, 0)
	for _, p := range r.byID {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
