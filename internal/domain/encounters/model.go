package encounters

import "time"

// Encounter es un acto clínico sobre un paciente. El practitioner que lo crea queda como attending.
type Encounter struct {
	ID        string
	PatientID string

	OrganizationID          string
	AttendingPractitionerID string

	Type   EncounterType
	Status Status

	Reason    string
	Notes     string
	Diagnosis string

	OccurredAt time.Time
	RecordedAt time.Time
	FinishedAt *time.Time
}
