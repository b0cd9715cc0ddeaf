package encounters

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, e Encounter) error
	GetByID(ctx context.Context, id string) (Encounter, error)
	ListByPatient(ctx context.Context, patientID string, filter ListFilter) ([]Encounter, error)
	// Finish es condicional: solo IN_PROGRESS. Si no, ErrAlreadyFinished.
	Finish(ctx context.Context, id string, f Finish) (Encounter, error)
}

type ListFilter struct {
	Types          []EncounterType
	From           *time.Time
	To             *time.Time
	PractitionerID string
	Limit          int
}

type Finish struct {
	Diagnosis string
	Notes     string
	At        time.Time
}

// Matches aplica el filtro en memoria (repo in-memory y fakes).
func (f ListFilter) Matches(e Encounter) bool {
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if e.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.From != nil && e.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.OccurredAt.After(*f.To) {
		return false
	}
	if f.PractitionerID != "" && e.AttendingPractitionerID != f.PractitionerID {
		return false
	}
	return true
}
