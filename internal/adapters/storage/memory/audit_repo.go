package memory

import (
	"context"
	"sync"

	"patient-access/internal/domain/audit"
)

// auditRepo es append-only: un slice en orden de llegada.
type auditRepo struct {
	mu      sync.RWMutex
	records []audit.Record
}

func NewAuditRepo() audit.Repository {
	return &auditRepo{}
}

func (r *auditRepo) Append(ctx context.Context, rec audit.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *auditRepo) ListByPatient(ctx context.Context, patientID string, limit int) ([]audit.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]audit.Record, 0)
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].PatientID != patientID {
			continue
		}
		out = append(out, r.records[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
