package prescriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/domain/encounters"
	"patient-access/internal/platform/apperr"
	"patient-access/internal/ports/auth"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput     = apperr.ErrValidation
	ErrForbidden        = apperr.ErrForbidden
	ErrNotFound         = apperr.ErrNotFound
	ErrAlreadyDispensed = fmt.Errorf("%w: prescription already dispensed", apperr.ErrInvalidState)
	ErrEncounterClosed  = fmt.Errorf("%w: encounter is finished", apperr.ErrInvalidState)
)

const resourcePrescription = "prescription"

type Authorizer interface {
	Check(ctx context.Context, req accessgrants.AccessRequest) (accessgrants.Decision, error)
}

// EncounterLookup lo implementa encounters.Service.
type EncounterLookup interface {
	Lookup(ctx context.Context, id string) (encounters.Encounter, error)
}

type Service struct {
	repo       Repository
	encounters EncounterLookup
	authz      Authorizer
	now        func() time.Time
}

func NewService(repo Repository, encs EncounterLookup, authz Authorizer) *Service {
	return &Service{
		repo:       repo,
		encounters: encs,
		authz:      authz,
		now:        time.Now,
	}
}

type CreateInput struct {
	Medication Medication
	StartDate  time.Time
	EndDate    *time.Time
	Notes      string
}

// Create: solo el attending del encounter, y con el encounter abierto.
func (s *Service) Create(ctx context.Context, actor auth.Claims, encounterID string, in CreateInput) (Prescription, error) {
	enc, err := s.encounters.Lookup(ctx, encounterID)
	if err != nil {
		return Prescription{}, err
	}
	if actor.UserID == "" || actor.UserID != enc.AttendingPractitionerID {
		if _, err := s.authz.Check(ctx, accessgrants.AccessRequest{
			Subject:      actor,
			PatientID:    enc.PatientID,
			Scope:        accessgrants.ScopeViewMedicalHistory,
			Action:       "prescription.create",
			ResourceType: "encounter",
			ResourceID:   enc.ID,
		}); err != nil {
			return Prescription{}, hideDenied(err, "encounter")
		}
		return Prescription{}, fmt.Errorf("%w: only the attending practitioner can prescribe", ErrForbidden)
	}
	if enc.Status != encounters.StatusInProgress {
		return Prescription{}, ErrEncounterClosed
	}

	med := Medication{
		Name:      strings.TrimSpace(in.Medication.Name),
		Dosage:    strings.TrimSpace(in.Medication.Dosage),
		DoseUnit:  strings.TrimSpace(in.Medication.DoseUnit),
		Route:     strings.ToLower(strings.TrimSpace(in.Medication.Route)),
		Frequency: strings.TrimSpace(in.Medication.Frequency),
	}
	if med.Name == "" || med.Dosage == "" {
		return Prescription{}, fmt.Errorf("%w: medication name and dosage required", ErrInvalidInput)
	}

	now := s.now()
	start := in.StartDate
	if start.IsZero() {
		start = now
	}
	if in.EndDate != nil && in.EndDate.Before(start) {
		return Prescription{}, fmt.Errorf("%w: endDate before startDate", ErrInvalidInput)
	}

	p := Prescription{
		ID:             uuid.NewString(),
		EncounterID:    enc.ID,
		PatientID:      enc.PatientID,
		OrganizationID: enc.OrganizationID,
		PrescriberID:   actor.UserID,
		Medication:     med,
		StartDate:      start,
		EndDate:        in.EndDate,
		Notes:          strings.TrimSpace(in.Notes),
		Status:         StatusActive,
		CreatedAt:      now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return Prescription{}, err
	}
	return p, nil
}

// List: dueño o canViewPrescriptions ven todo; un prescriptor sin grant ve solo las suyas.
func (s *Service) List(ctx context.Context, actor auth.Claims, patientID string) ([]Prescription, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fmt.Errorf("%w: patientId required", ErrInvalidInput)
	}

	_, err := s.authz.Check(ctx, accessgrants.AccessRequest{
		Subject:      actor,
		PatientID:    patientID,
		Scope:        accessgrants.ScopeViewPrescriptions,
		Action:       "prescription.list",
		ResourceType: resourcePrescription,
	})
	if err == nil {
		return s.repo.ListByPatient(ctx, patientID, "")
	}
	if !errors.Is(err, apperr.ErrForbidden) || !actor.Role.IsClinician() {
		return nil, err
	}

	own, lerr := s.repo.ListByPatient(ctx, patientID, actor.UserID)
	if lerr != nil {
		return nil, lerr
	}
	if len(own) == 0 {
		return nil, err
	}
	return own, nil
}

// ListForEncounter: mismas reglas que Get, con el attending del encounter.
func (s *Service) ListForEncounter(ctx context.Context, actor auth.Claims, encounterID string) ([]Prescription, error) {
	enc, err := s.encounters.Lookup(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authz.Check(ctx, accessgrants.AccessRequest{
		Subject:                 actor,
		PatientID:               enc.PatientID,
		Scope:                   accessgrants.ScopeViewPrescriptions,
		AttendingPractitionerID: enc.AttendingPractitionerID,
		Action:                  "prescription.list",
		ResourceType:            "encounter",
		ResourceID:              enc.ID,
	}); err != nil {
		return nil, hideDenied(err, "encounter")
	}
	return s.repo.ListByEncounter(ctx, enc.ID)
}

func (s *Service) Get(ctx context.Context, actor auth.Claims, id string) (Prescription, error) {
	p, err := s.lookup(ctx, id)
	if err != nil {
		return Prescription{}, err
	}
	if _, err := s.authz.Check(ctx, accessgrants.AccessRequest{
		Subject:                 actor,
		PatientID:               p.PatientID,
		Scope:                   accessgrants.ScopeViewPrescriptions,
		AttendingPractitionerID: p.PrescriberID,
		Action:                  "prescription.read",
		ResourceType:            resourcePrescription,
		ResourceID:              p.ID,
	}); err != nil {
		return Prescription{}, hideDenied(err, "prescription")
	}
	return p, nil
}

// Dispense: farmacéutico con grant vigente de su organización y canViewPrescriptions.
func (s *Service) Dispense(ctx context.Context, actor auth.Claims, id string) (Prescription, error) {
	if actor.Role != auth.RolePharmacist {
		return Prescription{}, fmt.Errorf("%w: only pharmacists can dispense", ErrForbidden)
	}
	p, err := s.lookup(ctx, id)
	if err != nil {
		return Prescription{}, err
	}

	d, err := s.authz.Check(ctx, accessgrants.AccessRequest{
		Subject:      actor,
		PatientID:    p.PatientID,
		Scope:        accessgrants.ScopeViewPrescriptions,
		Action:       "prescription.dispense",
		ResourceType: resourcePrescription,
		ResourceID:   p.ID,
	})
	if err != nil {
		return Prescription{}, hideDenied(err, "prescription")
	}
	if d.Basis != accessgrants.BasisGrant {
		return Prescription{}, fmt.Errorf("%w: dispensing requires an active grant", ErrForbidden)
	}

	if p.Status != StatusActive {
		return Prescription{}, ErrAlreadyDispensed
	}
	return s.repo.MarkDispensed(ctx, p.ID, actor.UserID, s.now())
}

func (s *Service) lookup(ctx context.Context, id string) (Prescription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Prescription{}, fmt.Errorf("%w: prescriptionId required", ErrInvalidInput)
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Prescription{}, fmt.Errorf("%w: prescription not found", ErrNotFound)
		}
		return Prescription{}, err
	}
	return p, nil
}

// hideDenied: sobre un recurso pedido por ID, un acceso denegado se reporta como NotFound
// para no revelar que existe.
func hideDenied(err error, resource string) error {
	if errors.Is(err, apperr.ErrForbidden) {
		return fmt.Errorf("%w: %s not found", ErrNotFound, resource)
	}
	return err
}
