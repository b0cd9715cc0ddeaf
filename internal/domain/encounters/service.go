package encounters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/platform/apperr"
	"patient-access/internal/ports/auth"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput    = apperr.ErrValidation
	ErrForbidden       = apperr.ErrForbidden
	ErrNotFound        = apperr.ErrNotFound
	ErrAlreadyFinished = fmt.Errorf("%w: encounter already finished", apperr.ErrInvalidState)
)

const resourceEncounter = "encounter"

// Authorizer lo implementa accessgrants.Authorizer.
type Authorizer interface {
	Check(ctx context.Context, req accessgrants.AccessRequest) (accessgrants.Decision, error)
}

type Service struct {
	repo  Repository
	authz Authorizer
	now   func() time.Time
}

func NewService(repo Repository, authz Authorizer) *Service {
	return &Service{
		repo:  repo,
		authz: authz,
		now:   time.Now,
	}
}

type CreateInput struct {
	Type       EncounterType
	OccurredAt time.Time
	Reason     string
	Notes      string
}

// Create: solo practitioners, con grant ACTIVE vigente de su organización y canCreateEncounters.
func (s *Service) Create(ctx context.Context, actor auth.Claims, patientID string, in CreateInput) (Encounter, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return Encounter{}, fmt.Errorf("%w: patientId required", ErrInvalidInput)
	}
	if actor.Role != auth.RolePractitioner {
		return Encounter{}, fmt.Errorf("%w: only practitioners can create encounters", ErrForbidden)
	}

	if _, err := s.authz.Check(ctx, accessgrants.AccessRequest{
		Subject:      actor,
		PatientID:    patientID,
		Scope:        accessgrants.ScopeCreateEncounters,
		Action:       "encounter.create",
		ResourceType: resourceEncounter,
	}); err != nil {
		return Encounter{}, err
	}

	if !in.Type.Valid() {
		return Encounter{}, fmt.Errorf("%w: unknown encounter type %q", ErrInvalidInput, in.Type)
	}
	now := s.now()
	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	if occurred.After(now.Add(5 * time.Minute)) {
		return Encounter{}, fmt.Errorf("%w: occurredAt in the future", ErrInvalidInput)
	}

	e := Encounter{
		ID:                      uuid.NewString(),
		PatientID:               patientID,
		OrganizationID:          actor.OrganizationID,
		AttendingPractitionerID: actor.UserID,
		Type:                    in.Type,
		Status:                  StatusInProgress,
		Reason:                  strings.TrimSpace(in.Reason),
		Notes:                   strings.TrimSpace(in.Notes),
		OccurredAt:              occurred,
		RecordedAt:              now,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return Encounter{}, err
	}
	return e, nil
}

// Get: dueño, attending del encounter o grant con canViewMedicalHistory.
func (s *Service) Get(ctx context.Context, actor auth.Claims, id string) (Encounter, error) {
	e, err := s.Lookup(ctx, id)
	if err != nil {
		return Encounter{}, err
	}

	if _, err := s.authz.Check(ctx, accessgrants.AccessRequest{
		Subject:                 actor,
		PatientID:               e.PatientID,
		Scope:                   accessgrants.ScopeViewMedicalHistory,
		AttendingPractitionerID: e.AttendingPractitionerID,
		Action:                  "encounter.read",
		ResourceType:            resourceEncounter,
		ResourceID:              e.ID,
	}); err != nil {
		return Encounter{}, hideDenied(err)
	}
	return e, nil
}

// List: con acceso al historial se ve todo. Un practitioner sin grant pero que atendió
// al paciente ve solo sus propios encounters.
func (s *Service) List(ctx context.Context, actor auth.Claims, patientID string, filter ListFilter) ([]Encounter, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fmt.Errorf("%w: patientId required", ErrInvalidInput)
	}

	_, err := s.authz.Check(ctx, accessgrants.AccessRequest{
		Subject:      actor,
		PatientID:    patientID,
		Scope:        accessgrants.ScopeViewMedicalHistory,
		Action:       "encounter.list",
		ResourceType: resourceEncounter,
	})
	if err == nil {
		return s.repo.ListByPatient(ctx, patientID, filter)
	}
	if !errors.Is(err, apperr.ErrForbidden) || !actor.Role.IsClinician() {
		return nil, err
	}

	own := filter
	own.PractitionerID = actor.UserID
	items, lerr := s.repo.ListByPatient(ctx, patientID, own)
	if lerr != nil {
		return nil, lerr
	}
	if len(items) == 0 {
		return nil, err
	}
	return items, nil
}

type FinishInput struct {
	Diagnosis string
	Notes     string
}

// Finish: solo el attending. IN_PROGRESS -> FINISHED, condicional.
func (s *Service) Finish(ctx context.Context, actor auth.Claims, id string, in FinishInput) (Encounter, error) {
	e, err := s.Lookup(ctx, id)
	if err != nil {
		return Encounter{}, err
	}
	if actor.UserID == "" || actor.UserID != e.AttendingPractitionerID {
		// Quien no puede ver el encounter recibe NotFound, igual que si no existiera.
		if _, err := s.authz.Check(ctx, accessgrants.AccessRequest{
			Subject:      actor,
			PatientID:    e.PatientID,
			Scope:        accessgrants.ScopeViewMedicalHistory,
			Action:       "encounter.finish",
			ResourceType: resourceEncounter,
			ResourceID:   e.ID,
		}); err != nil {
			return Encounter{}, hideDenied(err)
		}
		return Encounter{}, fmt.Errorf("%w: only the attending practitioner can finish the encounter", ErrForbidden)
	}
	if e.Status != StatusInProgress {
		return Encounter{}, ErrAlreadyFinished
	}

	notes := strings.TrimSpace(in.Notes)
	if notes == "" {
		notes = e.Notes
	}
	return s.repo.Finish(ctx, e.ID, Finish{
		Diagnosis: strings.TrimSpace(in.Diagnosis),
		Notes:     notes,
		At:        s.now(),
	})
}

// Lookup sin chequeo de acceso. Lo usa prescriptions para resolver el attending.
func (s *Service) Lookup(ctx context.Context, id string) (Encounter, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Encounter{}, fmt.Errorf("%w: encounterId required", ErrInvalidInput)
	}
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Encounter{}, fmt.Errorf("%w: encounter not found", ErrNotFound)
		}
		return Encounter{}, err
	}
	return e, nil
}

// hideDenied: sobre un recurso pedido por ID, un acceso denegado se reporta como NotFound
// para no revelar que existe.
func hideDenied(err error) error {
	if errors.Is(err, apperr.ErrForbidden) {
		return fmt.Errorf("%w: encounter not found", ErrNotFound)
	}
	return err
}
