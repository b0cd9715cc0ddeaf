package encounters

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/platform/apperr"
	"patient-access/internal/ports/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepo struct {
	mu   sync.Mutex
	byID map[string]Encounter
}

func newTestRepo() *testRepo {
	return &testRepo{byID: map[string]Encounter{}}
}

func (r *testRepo) Create(ctx context.Context, e Encounter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[e.ID] = e
	return nil
}

func (r *testRepo) GetByID(ctx context.Context, id string) (Encounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return Encounter{}, apperr.ErrNotFound
	}
	return e, nil
}

func (r *testRepo) ListByPatient(ctx context.Context, patientID string, filter ListFilter) ([]Encounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Encounter, 0)
	for _, e := range r.byID {
		if e.PatientID == patientID && filter.Matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out, nil
}

func (r *testRepo) Finish(ctx context.Context, id string, f Finish) (Encounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return Encounter{}, apperr.ErrNotFound
	}
	if e.Status != StatusInProgress {
		return Encounter{}, ErrAlreadyFinished
	}
	e.Status = StatusFinished
	e.Diagnosis = f.Diagnosis
	e.Notes = f.Notes
	at := f.At
	e.FinishedAt = &at
	r.byID[id] = e
	return e, nil
}

// fakeAuthz: owner y attending pasan siempre; el resto según grants[userID] (scopes permitidos).
type fakeAuthz struct {
	owners map[string]string
	grants map[string]accessgrants.AccessScope
	calls  []accessgrants.AccessRequest
}

func (a *fakeAuthz) Check(ctx context.Context, req accessgrants.AccessRequest) (accessgrants.Decision, error) {
	a.calls = append(a.calls, req)
	owner, ok := a.owners[req.PatientID]
	if !ok {
		return accessgrants.Decision{}, fmt.Errorf("%w: patient not found", apperr.ErrNotFound)
	}
	if owner == req.Subject.UserID {
		return accessgrants.Decision{Allowed: true, Basis: accessgrants.BasisOwner}, nil
	}
	if req.AttendingPractitionerID != "" && req.AttendingPractitionerID == req.Subject.UserID {
		return accessgrants.Decision{Allowed: true, Basis: accessgrants.BasisAttending}, nil
	}
	if s, ok := a.grants[req.Subject.UserID]; ok && s.Allows(req.Scope) {
		return accessgrants.Decision{Allowed: true, Basis: accessgrants.BasisGrant}, nil
	}
	return accessgrants.Decision{Basis: accessgrants.BasisNone}, fmt.Errorf("%w: no access", apperr.ErrForbidden)
}

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func doc(id string) auth.Claims {
	return auth.Claims{UserID: id, Role: auth.RolePractitioner, OrganizationID: "org-1"}
}

func newTestService(grants map[string]accessgrants.AccessScope) (*Service, *testRepo, *fakeAuthz) {
	repo := newTestRepo()
	authz := &fakeAuthz{owners: map[string]string{"pat-1": "user-pat-1"}, grants: grants}
	svc := NewService(repo, authz)
	svc.now = func() time.Time { return now }
	return svc, repo, authz
}

func TestService_Create(t *testing.T) {
	svc, _, authz := newTestService(map[string]accessgrants.AccessScope{
		"doc-1": {CanCreateEncounters: true},
	})

	e, err := svc.Create(context.Background(), doc("doc-1"), "pat-1", CreateInput{Type: TypeConsultation, Reason: " dolor "})
	require.NoError(t, err)

	assert.Equal(t, StatusInProgress, e.Status)
	assert.Equal(t, "doc-1", e.AttendingPractitionerID)
	assert.Equal(t, "org-1", e.OrganizationID)
	assert.Equal(t, "dolor", e.Reason)
	assert.Equal(t, now, e.OccurredAt, "defaults to now")

	require.Len(t, authz.calls, 1)
	assert.Equal(t, accessgrants.ScopeCreateEncounters, authz.calls[0].Scope)
}

func TestService_Create_RequiresCreateScope(t *testing.T) {
	svc, repo, _ := newTestService(map[string]accessgrants.AccessScope{
		"doc-1": {CanViewMedicalHistory: true, CanCreateEncounters: false},
	})

	_, err := svc.Create(context.Background(), doc("doc-1"), "pat-1", CreateInput{Type: TypeConsultation})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Empty(t, repo.byID)
}

func TestService_Create_Validation(t *testing.T) {
	svc, _, _ := newTestService(map[string]accessgrants.AccessScope{"doc-1": {CanCreateEncounters: true}})

	_, err := svc.Create(context.Background(), doc("doc-1"), "pat-1", CreateInput{Type: "SURGERY?"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Create(context.Background(), doc("doc-1"), "pat-1", CreateInput{Type: TypeConsultation, OccurredAt: now.Add(time.Hour)})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	patient := auth.Claims{UserID: "user-pat-1", Role: auth.RolePatient}
	_, err = svc.Create(context.Background(), patient, "pat-1", CreateInput{Type: TypeConsultation})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestService_List_AttendingWithoutGrantSeesOwn(t *testing.T) {
	svc, repo, _ := newTestService(nil)

	require.NoError(t, repo.Create(context.Background(), Encounter{ID: "e1", PatientID: "pat-1", AttendingPractitionerID: "doc-1", Type: TypeConsultation, OccurredAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, repo.Create(context.Background(), Encounter{ID: "e2", PatientID: "pat-1", AttendingPractitionerID: "doc-2", Type: TypeEmergency, OccurredAt: now.Add(-time.Hour)}))

	own, err := svc.List(context.Background(), doc("doc-1"), "pat-1", ListFilter{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "e1", own[0].ID)

	_, err = svc.List(context.Background(), doc("doc-3"), "pat-1", ListFilter{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	all, err := svc.List(context.Background(), auth.Claims{UserID: "user-pat-1", Role: auth.RolePatient}, "pat-1", ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	types, err := svc.List(context.Background(), auth.Claims{UserID: "user-pat-1", Role: auth.RolePatient}, "pat-1", ListFilter{Types: []EncounterType{TypeEmergency}})
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "e2", types[0].ID)
}

func TestService_Get_PassesAttending(t *testing.T) {
	svc, repo, authz := newTestService(nil)
	require.NoError(t, repo.Create(context.Background(), Encounter{ID: "e1", PatientID: "pat-1", AttendingPractitionerID: "doc-1"}))

	_, err := svc.Get(context.Background(), doc("doc-1"), "e1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", authz.calls[0].AttendingPractitionerID)

	// Sin acceso responde igual que un ID inexistente.
	_, hiddenErr := svc.Get(context.Background(), doc("doc-2"), "e1")
	assert.ErrorIs(t, hiddenErr, apperr.ErrNotFound)
	assert.NotErrorIs(t, hiddenErr, apperr.ErrForbidden)

	_, missingErr := svc.Get(context.Background(), doc("doc-2"), "missing")
	assert.ErrorIs(t, missingErr, apperr.ErrNotFound)
	assert.Equal(t, missingErr.Error(), hiddenErr.Error())
}

func TestService_Finish(t *testing.T) {
	svc, repo, _ := newTestService(map[string]accessgrants.AccessScope{
		"doc-3": {CanViewMedicalHistory: true},
	})
	require.NoError(t, repo.Create(context.Background(), Encounter{ID: "e1", PatientID: "pat-1", AttendingPractitionerID: "doc-1", Status: StatusInProgress, Notes: "inicial"}))

	// Sin acceso al historial: NotFound. Con acceso pero sin ser attending: Forbidden.
	_, err := svc.Finish(context.Background(), doc("doc-2"), "e1", FinishInput{Diagnosis: "gripe"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Finish(context.Background(), doc("doc-3"), "e1", FinishInput{Diagnosis: "gripe"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.Finish(context.Background(), auth.Claims{UserID: "user-pat-1", Role: auth.RolePatient}, "e1", FinishInput{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	e, err := svc.Finish(context.Background(), doc("doc-1"), "e1", FinishInput{Diagnosis: "gripe"})
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, e.Status)
	assert.Equal(t, "gripe", e.Diagnosis)
	assert.Equal(t, "inicial", e.Notes)
	require.NotNil(t, e.FinishedAt)
	assert.Equal(t, now, *e.FinishedAt)

	_, err = svc.Finish(context.Background(), doc("doc-1"), "e1", FinishInput{Diagnosis: "otra"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}
