package prescriptions

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, p Prescription) error
	GetByID(ctx context.Context, id string) (Prescription, error)
	// ListByPatient: prescriberID vacío = todas.
	ListByPatient(ctx context.Context, patientID, prescriberID string) ([]Prescription, error)
	ListByEncounter(ctx context.Context, encounterID string) ([]Prescription, error)
	// MarkDispensed es condicional: solo ACTIVE. Si no, ErrAlreadyDispensed.
	MarkDispensed(ctx context.Context, id, pharmacistID string, at time.Time) (Prescription, error)
}
