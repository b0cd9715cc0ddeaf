package jwtverifier

import (
	"context"
	"testing"
	"time"

	"patient-access/internal/platform/apperr"
	"patient-access/internal/ports/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v, err := New("s3cret", "patient-access")
	require.NoError(t, err)

	in := auth.Claims{UserID: "doc-1", Email: "doc@clinic.test", Role: auth.RolePractitioner, OrganizationID: "org-1"}
	tok, err := v.Sign(in, time.Hour)
	require.NoError(t, err)

	got, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestVerifier_Rejects(t *testing.T) {
	v, err := New("s3cret", "patient-access")
	require.NoError(t, err)
	other, err := New("other", "patient-access")
	require.NoError(t, err)
	wrongIssuer, err := New("s3cret", "someone-else")
	require.NoError(t, err)

	claims := auth.Claims{UserID: "doc-1", Role: auth.RolePractitioner}

	expired, err := v.Sign(claims, -time.Minute)
	require.NoError(t, err)
	badSig, err := other.Sign(claims, time.Hour)
	require.NoError(t, err)
	badIss, err := wrongIssuer.Sign(claims, time.Hour)
	require.NoError(t, err)
	noSub, err := v.Sign(auth.Claims{Role: auth.RolePatient}, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":         "",
		"garbage":       "not-a-jwt",
		"expired":       expired,
		"bad signature": badSig,
		"wrong issuer":  badIss,
		"missing sub":   noSub,
		"alg none":      none,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tok)
			assert.ErrorIs(t, err, apperr.ErrUnauthorized)
		})
	}
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New("  ", "")
	assert.ErrorIs(t, err, ErrSecretRequired)
}
