package prescriptions

import "time"

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusDispensed Status = "DISPENSED"
)

// Medication es una línea de la receta.
type Medication struct {
	Name string

	Dosage   string // "500"
	DoseUnit string // "mg", "ml", etc.
	Route    string // "oral", "iv", ...

	Frequency string // texto por ahora: "cada 8h"
}

type Prescription struct {
	ID          string
	EncounterID string
	PatientID   string

	OrganizationID string
	PrescriberID   string

	Medication Medication

	StartDate time.Time
	EndDate   *time.Time
	Notes     string

	Status      Status
	CreatedAt   time.Time
	DispensedAt *time.Time
	DispensedBy string
}
