package patients

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/platform/apperr"
	"patient-access/internal/ports/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGrantLister struct {
	grants []accessgrants.Grant
	err    error
	calls  int
}

func (f *fakeGrantLister) ListRequestedBy(ctx context.Context, practitionerID string, statuses map[accessgrants.Status]struct{}) ([]accessgrants.Grant, error) {
	f.calls++
	return f.grants, f.err
}

// fakeChecker permite los pacientes listados en allowed; el resto es Forbidden.
type fakeChecker struct {
	allowed map[string]bool
	err     error
	checked []string
}

func (f *fakeChecker) Check(ctx context.Context, req accessgrants.AccessRequest) (accessgrants.Decision, error) {
	f.checked = append(f.checked, req.PatientID)
	if f.err != nil {
		return accessgrants.Decision{}, f.err
	}
	if !f.allowed[req.PatientID] {
		return accessgrants.Decision{}, fmt.Errorf("%w: no access", apperr.ErrForbidden)
	}
	return accessgrants.Decision{Allowed: true, Basis: accessgrants.BasisGrant}, nil
}

func sharedGrant(id, patientID, orgID string) accessgrants.Grant {
	return accessgrants.Grant{
		ID:                       id,
		PatientID:                patientID,
		OrganizationID:           orgID,
		RequestingPractitionerID: "doc-1",
		Status:                   accessgrants.StatusActive,
		Scope:                    accessgrants.AccessScope{CanViewMedicalHistory: true},
		ExpiresAt:                now.Add(time.Hour),
	}
}

func newSharedFixture(t *testing.T) (*Service, *testRepo) {
	t.Helper()
	repo := newTestRepo()
	for _, id := range []string{"pat-1", "pat-2", "pat-3"} {
		require.NoError(t, repo.Create(context.Background(), Patient{ID: id, UserID: "user-" + id, FullName: id}))
	}
	svc := NewService(repo)
	svc.now = func() time.Time { return now }
	return svc, repo
}

func TestService_ListShared_OnlyCurrentOrganizationAndAllowed(t *testing.T) {
	svc, _ := newSharedFixture(t)
	lister := &fakeGrantLister{grants: []accessgrants.Grant{
		sharedGrant("g1", "pat-1", "org-1"),
		sharedGrant("g1b", "pat-1", "org-1"),
		sharedGrant("g2", "pat-2", "org-2"),
		sharedGrant("g3", "pat-3", "org-1"),
	}}
	checker := &fakeChecker{allowed: map[string]bool{"pat-1": true}}

	doc := auth.Claims{UserID: "doc-1", Role: auth.RolePractitioner, OrganizationID: "org-1"}
	out, err := svc.ListShared(context.Background(), doc, lister, checker)
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, "pat-1", out[0].Patient.ID)
	assert.Equal(t, "g1", out[0].GrantID)
	assert.Equal(t, []string{"pat-1", "pat-3"}, checker.checked)
}

func TestService_ListShared_WithoutOrganizationIsEmpty(t *testing.T) {
	svc, _ := newSharedFixture(t)
	lister := &fakeGrantLister{grants: []accessgrants.Grant{
		sharedGrant("g1", "pat-1", "org-1"),
		sharedGrant("g2", "pat-2", "org-2"),
	}}
	checker := &fakeChecker{allowed: map[string]bool{"pat-1": true, "pat-2": true}}

	for name, actor := range map[string]auth.Claims{
		"practitioner without org": {UserID: "doc-1", Role: auth.RolePractitioner},
		"patient":                  {UserID: "doc-1", Role: auth.RolePatient, OrganizationID: "org-1"},
	} {
		t.Run(name, func(t *testing.T) {
			out, err := svc.ListShared(context.Background(), actor, lister, checker)
			require.NoError(t, err)
			assert.Empty(t, out)
		})
	}
	assert.Zero(t, lister.calls)
	assert.Empty(t, checker.checked)
}

func TestService_ListShared_Errors(t *testing.T) {
	doc := auth.Claims{UserID: "doc-1", Role: auth.RolePractitioner, OrganizationID: "org-1"}
	boom := errors.New("storage down")

	t.Run("missing patient is skipped", func(t *testing.T) {
		svc, _ := newSharedFixture(t)
		lister := &fakeGrantLister{grants: []accessgrants.Grant{sharedGrant("g9", "pat-404", "org-1")}}
		checker := &fakeChecker{allowed: map[string]bool{"pat-404": true}}

		out, err := svc.ListShared(context.Background(), doc, lister, checker)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("checker failure propagates", func(t *testing.T) {
		svc, _ := newSharedFixture(t)
		lister := &fakeGrantLister{grants: []accessgrants.Grant{sharedGrant("g1", "pat-1", "org-1")}}

		_, err := svc.ListShared(context.Background(), doc, lister, &fakeChecker{err: boom})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("lister failure propagates", func(t *testing.T) {
		svc, _ := newSharedFixture(t)

		_, err := svc.ListShared(context.Background(), doc, &fakeGrantLister{err: boom}, &fakeChecker{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("repository failure propagates", func(t *testing.T) {
		svc := NewService(failingRepo{err: boom})
		lister := &fakeGrantLister{grants: []accessgrants.Grant{sharedGrant("g1", "pat-1", "org-1")}}
		checker := &fakeChecker{allowed: map[string]bool{"pat-1": true}}

		_, err := svc.ListShared(context.Background(), doc, lister, checker)
		assert.ErrorIs(t, err, boom)
	})
}

type failingRepo struct{ err error }

func (f failingRepo) Create(context.Context, Patient) error { return f.err }
func (f failingRepo) Update(context.Context, Patient) error { return f.err }
func (f failingRepo) GetByID(context.Context, string) (Patient, error) {
	return Patient{}, f.err
}
func (f failingRepo) GetByUserID(context.Context, string) (Patient, error) {
	return Patient{}, f.err
}
func (f failingRepo) GetByDigitalIdentifier(context.Context, string) (Patient, error) {
	return Patient{}, f.err
}
