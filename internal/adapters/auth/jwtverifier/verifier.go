package jwtverifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"patient-access/internal/platform/apperr"
	"patient-access/internal/ports/auth"

	"github.com/golang-jwt/jwt/v5"
)

var ErrSecretRequired = errors.New("jwt secret required")

// tokenClaims es el payload que emite el IdP: sub + email + role + org_id.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email          string `json:"email,omitempty"`
	Role           string `json:"role"`
	OrganizationID string `json:"org_id,omitempty"`
}

// Verifier implementa auth.AuthVerifier con HS256.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var _ auth.AuthVerifier = (*Verifier)(nil)

func New(secret, issuer string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretRequired
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		now:    time.Now,
	}, nil
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, fmt.Errorf("%w: empty token", apperr.ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var tc tokenClaims
	_, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}

	sub := strings.TrimSpace(tc.Subject)
	if sub == "" {
		return auth.Claims{}, fmt.Errorf("%w: token without sub", apperr.ErrUnauthorized)
	}

	return auth.Claims{
		UserID:         sub,
		Email:          strings.TrimSpace(tc.Email),
		Role:           auth.ParseRole(tc.Role),
		OrganizationID: strings.TrimSpace(tc.OrganizationID),
	}, nil
}

// Sign emite un token con los mismos claims que Verify espera. Lo usan tests y el comando `token`.
func (v *Verifier) Sign(c auth.Claims, ttl time.Duration) (string, error) {
	now := v.now()
	tc := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:          c.Email,
		Role:           string(c.Role),
		OrganizationID: c.OrganizationID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(v.secret)
}
