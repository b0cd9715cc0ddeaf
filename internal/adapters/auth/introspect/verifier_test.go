package introspect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"patient-access/internal/platform/apperr"
	"patient-access/internal/ports/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)

		w.Header().Set("Content-Type", "application/json")
		switch in["token"] {
		case "good":
			_, _ = w.Write([]byte(`{"active":true,"user_id":"doc-1","role":"practitioner","organization_id":"org-1"}`))
		case "inactive":
			_, _ = w.Write([]byte(`{"active":false}`))
		case "boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifier(t *testing.T) {
	srv := newServer(t)
	v, err := New(Config{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	c, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, auth.Claims{UserID: "doc-1", Role: auth.RolePractitioner, OrganizationID: "org-1"}, c)

	_, err = v.Verify(context.Background(), "inactive")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = v.Verify(context.Background(), "unknown")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = v.Verify(context.Background(), "boom")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{BaseURL: "http://idp.local"})
	assert.Error(t, err)
}
