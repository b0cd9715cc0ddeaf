package prescriptions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/domain/encounters"
	"patient-access/internal/platform/apperr"
	"patient-access/internal/ports/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepo struct {
	mu   sync.Mutex
	byID map[string]Prescription
}

func newTestRepo() *testRepo {
	return &testRepo{byID: map[string]Prescription{}}
}

func (r *testRepo) Create(ctx context.Context, p Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = p
	return nil
}

func (r *testRepo) GetByID(ctx context.Context, id string) (Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return Prescription{}, apperr.ErrNotFound
	}
	return p, nil
}

func (r *testRepo) ListByPatient(ctx context.Context, patientID, prescriberID string) ([]Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Prescription, 0)
	for _, p := range r.byID {
		if p.PatientID != patientID {
			continue
		}
		if prescriberID != "" && p.PrescriberID != prescriberID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *testRepo) ListByEncounter(ctx context.Context, encounterID string) ([]Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Prescription, 0)
	for _, p := range r.byID {
		if p.EncounterID == encounterID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *testRepo) MarkDispensed(ctx context.Context, id, pharmacistID string, at time.Time) (Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return Prescription{}, apperr.ErrNotFound
	}
	if p.Status != StatusActive {
		return Prescription{}, ErrAlreadyDispensed
	}
	p.Status = StatusDispensed
	p.DispensedAt = &at
	p.DispensedBy = pharmacistID
	r.byID[id] = p
	return p, nil
}

type testEncounters map[string]encounters.Encounter

func (e testEncounters) Lookup(ctx context.Context, id string) (encounters.Encounter, error) {
	enc, ok := e[id]
	if !ok {
		return encounters.Encounter{}, fmt.Errorf("%w: encounter not found", apperr.ErrNotFound)
	}
	return enc, nil
}

// fakeAuthz: owner y attending pasan; el resto según los scopes de grants[userID].
type fakeAuthz struct {
	owner  string
	grants map[string]accessgrants.AccessScope
}

func (a fakeAuthz) Check(ctx context.Context, req accessgrants.AccessRequest) (accessgrants.Decision, error) {
	switch {
	case req.Subject.UserID == a.owner:
		return accessgrants.Decision{Allowed: true, Basis: accessgrants.BasisOwner}, nil
	case req.AttendingPractitionerID != "" && req.AttendingPractitionerID == req.Subject.UserID:
		return accessgrants.Decision{Allowed: true, Basis: accessgrants.BasisAttending}, nil
	}
	if s, ok := a.grants[req.Subject.UserID]; ok && s.Allows(req.Scope) {
		return accessgrants.Decision{Allowed: true, Basis: accessgrants.BasisGrant, GrantID: "g-" + req.Subject.UserID}, nil
	}
	return accessgrants.Decision{Basis: accessgrants.BasisNone}, fmt.Errorf("%w: no access", apperr.ErrForbidden)
}

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestService(grants map[string]accessgrants.AccessScope) (*Service, *testRepo) {
	repo := newTestRepo()
	encs := testEncounters{
		"enc-open": {ID: "enc-open", PatientID: "pat-1", OrganizationID: "org-1", AttendingPractitionerID: "doc-1", Status: encounters.StatusInProgress},
		"enc-done": {ID: "enc-done", PatientID: "pat-1", OrganizationID: "org-1", AttendingPractitionerID: "doc-1", Status: encounters.StatusFinished},
	}
	svc := NewService(repo, encs, fakeAuthz{owner: "user-pat-1", grants: grants})
	svc.now = func() time.Time { return now }
	return svc, repo
}

func doc(id string) auth.Claims {
	return auth.Claims{UserID: id, Role: auth.RolePractitioner, OrganizationID: "org-1"}
}

func pharmacist(id string) auth.Claims {
	return auth.Claims{UserID: id, Role: auth.RolePharmacist, OrganizationID: "org-9"}
}

func amoxicillin() CreateInput {
	return CreateInput{Medication: Medication{Name: "Amoxicilina", Dosage: "500", DoseUnit: "mg", Route: "Oral", Frequency: "cada 8h"}}
}

func TestService_Create(t *testing.T) {
	svc, _ := newTestService(map[string]accessgrants.AccessScope{
		"doc-8": {CanViewMedicalHistory: true},
	})

	p, err := svc.Create(context.Background(), doc("doc-1"), "enc-open", amoxicillin())
	require.NoError(t, err)
	assert.Equal(t, StatusActive, p.Status)
	assert.Equal(t, "pat-1", p.PatientID)
	assert.Equal(t, "org-1", p.OrganizationID)
	assert.Equal(t, "oral", p.Medication.Route)
	assert.Equal(t, now, p.StartDate)

	// Sin acceso al encounter: NotFound, como si no existiera.
	_, err = svc.Create(context.Background(), doc("doc-2"), "enc-open", amoxicillin())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// Lo ve pero no es el attending.
	_, err = svc.Create(context.Background(), doc("doc-8"), "enc-open", amoxicillin())
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.Create(context.Background(), doc("doc-1"), "enc-done", amoxicillin())
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = svc.Create(context.Background(), doc("doc-1"), "enc-missing", amoxicillin())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Create(context.Background(), doc("doc-1"), "enc-open", CreateInput{Medication: Medication{Name: "x"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	before := now.Add(-24 * time.Hour)
	in := amoxicillin()
	in.EndDate = &before
	_, err = svc.Create(context.Background(), doc("doc-1"), "enc-open", in)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestService_List(t *testing.T) {
	svc, repo := newTestService(map[string]accessgrants.AccessScope{
		"doc-7": {CanViewPrescriptions: true},
		"doc-8": {CanViewMedicalHistory: true},
	})
	require.NoError(t, repo.Create(context.Background(), Prescription{ID: "p1", PatientID: "pat-1", PrescriberID: "doc-1"}))
	require.NoError(t, repo.Create(context.Background(), Prescription{ID: "p2", PatientID: "pat-1", PrescriberID: "doc-2"}))

	all, err := svc.List(context.Background(), doc("doc-7"), "pat-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := svc.List(context.Background(), doc("doc-1"), "pat-1")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "p1", own[0].ID)

	// canViewMedicalHistory no implica canViewPrescriptions
	_, err = svc.List(context.Background(), doc("doc-8"), "pat-1")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	mine, err := svc.List(context.Background(), auth.Claims{UserID: "user-pat-1", Role: auth.RolePatient}, "pat-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestService_Dispense(t *testing.T) {
	svc, repo := newTestService(map[string]accessgrants.AccessScope{
		"pharm-1": {CanViewPrescriptions: true},
	})
	require.NoError(t, repo.Create(context.Background(), Prescription{ID: "p1", PatientID: "pat-1", PrescriberID: "doc-1", Status: StatusActive}))

	_, err := svc.Dispense(context.Background(), doc("doc-1"), "p1")
	assert.ErrorIs(t, err, apperr.ErrForbidden, "practitioners cannot dispense")

	_, err = svc.Dispense(context.Background(), pharmacist("pharm-2"), "p1")
	assert.ErrorIs(t, err, apperr.ErrNotFound, "no grant")

	p, err := svc.Dispense(context.Background(), pharmacist("pharm-1"), "p1")
	require.NoError(t, err)
	assert.Equal(t, StatusDispensed, p.Status)
	assert.Equal(t, "pharm-1", p.DispensedBy)
	require.NotNil(t, p.DispensedAt)
	assert.Equal(t, now, *p.DispensedAt)

	_, err = svc.Dispense(context.Background(), pharmacist("pharm-1"), "p1")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = svc.Dispense(context.Background(), pharmacist("pharm-1"), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_Get_PrescriberCountsAsAttending(t *testing.T) {
	svc, repo := newTestService(nil)
	require.NoError(t, repo.Create(context.Background(), Prescription{ID: "p1", PatientID: "pat-1", PrescriberID: "doc-1"}))

	_, err := svc.Get(context.Background(), doc("doc-1"), "p1")
	assert.NoError(t, err)

	_, hiddenErr := svc.Get(context.Background(), doc("doc-2"), "p1")
	assert.ErrorIs(t, hiddenErr, apperr.ErrNotFound)

	_, missingErr := svc.Get(context.Background(), doc("doc-2"), "missing")
	assert.ErrorIs(t, missingErr, apperr.ErrNotFound)
	assert.Equal(t, missingErr.Error(), hiddenErr.Error())
}
