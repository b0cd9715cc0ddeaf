package accessgrants

import (
	"context"
	"testing"
	"time"

	"patient-access/internal/platform/apperr"
	"patient-access/internal/ports/auditlog"
	"patient-access/internal/ports/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizer_Check(t *testing.T) {
	approved48hAgo := t0.Add(-48 * time.Hour)

	cases := []struct {
		name      string
		grant     *Grant
		req       AccessRequest
		wantBasis Basis
		wantErr   error
		audited   bool
	}{
		{
			name:      "owner reads own record",
			req:       AccessRequest{Subject: patientActor("1"), PatientID: "pat-1", Scope: ScopeViewMedicalHistory},
			wantBasis: BasisOwner,
		},
		{
			name: "attending practitioner without grant",
			req: AccessRequest{
				Subject:                 auth.Claims{UserID: "doc-9", Role: auth.RolePractitioner},
				PatientID:               "pat-1",
				Scope:                   ScopeViewMedicalHistory,
				AttendingPractitionerID: "doc-9",
			},
			wantBasis: BasisAttending,
			audited:   true,
		},
		{
			name:      "practitioner with active grant",
			grant:     &Grant{ID: "g1", Status: StatusActive, Scope: AccessScope{CanViewMedicalHistory: true}, ExpiresAt: t0.Add(time.Hour)},
			req:       AccessRequest{Subject: doctor(), PatientID: "pat-1", Scope: ScopeViewMedicalHistory},
			wantBasis: BasisGrant,
			audited:   true,
		},
		{
			name:    "grant approved 48h ago with 24h window",
			grant:   &Grant{ID: "g1", Status: StatusActive, Scope: fullScope(), GrantedAt: &approved48hAgo, ExpiresAt: approved48hAgo.Add(24 * time.Hour)},
			req:     AccessRequest{Subject: doctor(), PatientID: "pat-1", Scope: ScopeViewMedicalHistory},
			wantErr: apperr.ErrForbidden,
			audited: true,
		},
		{
			name:    "grant without encounter scope",
			grant:   &Grant{ID: "g1", Status: StatusActive, Scope: AccessScope{CanViewMedicalHistory: true}, ExpiresAt: t0.Add(time.Hour)},
			req:     AccessRequest{Subject: doctor(), PatientID: "pat-1", Scope: ScopeCreateEncounters},
			wantErr: apperr.ErrForbidden,
			audited: true,
		},
		{
			name:    "practitioner without organization claim",
			grant:   &Grant{ID: "g1", Status: StatusActive, Scope: fullScope(), ExpiresAt: t0.Add(time.Hour)},
			req:     AccessRequest{Subject: auth.Claims{UserID: "doc-1", Role: auth.RolePractitioner}, PatientID: "pat-1", Scope: ScopeViewMedicalHistory},
			wantErr: apperr.ErrForbidden,
			audited: true,
		},
		{
			name:    "another patient",
			req:     AccessRequest{Subject: patientActor("2"), PatientID: "pat-1", Scope: ScopeViewMedicalHistory},
			wantErr: apperr.ErrForbidden,
			audited: true,
		},
		{
			name:    "unknown patient",
			req:     AccessRequest{Subject: doctor(), PatientID: "pat-404", Scope: ScopeViewMedicalHistory},
			wantErr: apperr.ErrNotFound,
		},
		{
			name:    "anonymous",
			req:     AccessRequest{PatientID: "pat-1", Scope: ScopeViewMedicalHistory},
			wantErr: apperr.ErrUnauthorized,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			audit := &recordingAudit{}
			svc, repo := newTestService(WithAuditRecorder(audit))
			if tc.grant != nil {
				seed(t, repo, *tc.grant)
			}
			authz := NewAuthorizer(svc)

			d, err := authz.Check(context.Background(), tc.req)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.False(t, d.Allowed)
			} else {
				require.NoError(t, err)
				assert.True(t, d.Allowed)
				assert.Equal(t, tc.wantBasis, d.Basis)
			}

			if !tc.audited {
				assert.Empty(t, audit.entries)
				return
			}
			require.Len(t, audit.entries, 1)
			want := auditlog.OutcomeSuccess
			if tc.wantErr != nil {
				want = auditlog.OutcomeDenied
			}
			assert.Equal(t, want, audit.entries[0].Outcome)
			assert.Equal(t, "pat-1", audit.entries[0].PatientID)
		})
	}
}

func TestAuthorizer_RevokedGrantBlocksNewChecks(t *testing.T) {
	svc, repo := newTestService()
	seed(t, repo, Grant{ID: "g1", Status: StatusActive, Scope: fullScope(), ExpiresAt: t0.Add(time.Hour)})
	authz := NewAuthorizer(svc)

	req := AccessRequest{Subject: doctor(), PatientID: "pat-1", Scope: ScopeViewPrescriptions}

	d, err := authz.Check(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "g1", d.GrantID)

	_, err = svc.Revoke(context.Background(), DecisionInput{GrantID: "g1", PatientID: "pat-1"})
	require.NoError(t, err)

	_, err = authz.Check(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
