package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"patient-access/internal/ports/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureClaims(t *testing.T, mw func(http.Handler) http.Handler, r *http.Request) (auth.Claims, bool) {
	t.Helper()
	var (
		got auth.Claims
		ok  bool
	)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = GetClaims(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), r)
	return got, ok
}

func TestAuthContext_DevHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderDebugUserID, " doc-1 ")
	r.Header.Set(HeaderDebugRole, "practitioner")
	r.Header.Set(HeaderDebugOrgID, "org-1")

	c, ok := captureClaims(t, AuthContext(nil), r)
	require.True(t, ok)
	assert.Equal(t, "doc-1", c.UserID)
	assert.Equal(t, auth.RolePractitioner, c.Role)
	assert.Equal(t, "org-1", c.OrganizationID)

	_, ok = captureClaims(t, AuthContext(nil), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}

func TestAuthContext_BearerToken(t *testing.T) {
	verifier := auth.VerifierFunc(func(_ context.Context, token string) (auth.Claims, error) {
		if token != "good" {
			return auth.Claims{}, errors.New("bad token")
		}
		return auth.Claims{UserID: "u-1", Role: auth.RolePatient}, nil
	})

	cases := map[string]struct {
		header string
		want   bool
	}{
		"valid":         {header: "Bearer good", want: true},
		"lowercase":     {header: "bearer good", want: true},
		"rejected":      {header: "Bearer nope", want: false},
		"wrong scheme":  {header: "Basic good", want: false},
		"missing token": {header: "Bearer", want: false},
		"no header":     {header: "", want: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			// Los headers de debug se ignoran cuando hay verifier.
			r.Header.Set(HeaderDebugUserID, "intruder")

			c, ok := captureClaims(t, AuthContext(verifier), r)
			assert.Equal(t, tc.want, ok)
			if tc.want {
				assert.Equal(t, "u-1", c.UserID)
			}
		})
	}
}

func TestRequireClaims(t *testing.T) {
	w := httptest.NewRecorder()
	_, ok := RequireClaims(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(WithClaims(r.Context(), auth.Claims{UserID: "u-1"}))
	w = httptest.NewRecorder()
	c, ok := RequireClaims(w, r)
	assert.True(t, ok)
	assert.Equal(t, "u-1", c.UserID)
}
