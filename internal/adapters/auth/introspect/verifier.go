package introspect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"patient-access/internal/platform/apperr"
	"patient-access/internal/platform/httpclient"
	"patient-access/internal/ports/auth"
)

var ErrUpstream = errors.New("token introspection upstream error")

type Config struct {
	BaseURL string
	APIKey  string

	// Si está vacío, se usa "X-Api-Key".
	APIKeyHeader string
	Timeout      time.Duration

	// Para tests.
	Transport http.RoundTripper
}

// Verifier delega la validación del token a un servicio de identidad externo.
type Verifier struct {
	client *httpclient.Client
}

var _ auth.AuthVerifier = (*Verifier)(nil)

func New(cfg Config) (*Verifier, error) {
	h := strings.TrimSpace(cfg.APIKeyHeader)
	if h == "" {
		h = "X-Api-Key"
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("introspect: api key required")
	}
	c, err := httpclient.New(cfg.BaseURL, cfg.Timeout,
		httpclient.WithHeader(h, strings.TrimSpace(cfg.APIKey)),
		httpclient.WithTransport(cfg.Transport),
	)
	if err != nil {
		return nil, err
	}
	return &Verifier{client: c}, nil
}

type introspectResponse struct {
	Active         bool   `json:"active"`
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id"`
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, fmt.Errorf("%w: empty token", apperr.ErrUnauthorized)
	}

	var out introspectResponse
	err := v.client.DoJSON(ctx, http.MethodPost, "/v1/tokens/introspect", nil,
		map[string]string{"Authorization": "Bearer " + token},
		map[string]string{"token": token},
		&out,
	)
	if err != nil {
		switch httpclient.StatusCode(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return auth.Claims{}, fmt.Errorf("%w: token rejected", apperr.ErrUnauthorized)
		default:
			return auth.Claims{}, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
	}

	if !out.Active {
		return auth.Claims{}, fmt.Errorf("%w: token inactive", apperr.ErrUnauthorized)
	}
	uid := strings.TrimSpace(out.UserID)
	if uid == "" {
		return auth.Claims{}, fmt.Errorf("%w: response missing user_id", ErrUpstream)
	}

	return auth.Claims{
		UserID:         uid,
		Email:          strings.TrimSpace(out.Email),
		Role:           auth.ParseRole(out.Role),
		OrganizationID: strings.TrimSpace(out.OrganizationID),
	}, nil
}
