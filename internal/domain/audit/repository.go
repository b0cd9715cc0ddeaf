package audit

import "context"

type Repository interface {
	Append(ctx context.Context, r Record) error
	// ListByPatient devuelve lo más reciente primero, hasta limit.
	ListByPatient(ctx context.Context, patientID string, limit int) ([]Record, error)
}
