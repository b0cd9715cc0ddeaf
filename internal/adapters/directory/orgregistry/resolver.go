package orgregistry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"patient-access/internal/platform/httpclient"
	"patient-access/internal/ports/directory"
)

var (
	ErrNotConfigured = errors.New("org registry not configured")
	ErrUpstream      = errors.New("org registry upstream error")
)

type Config struct {
	BaseURL string
	APIKey  string

	APIKeyHeader string
	Timeout      time.Duration

	// AllowAll: todo practitioner es miembro de toda organización (dev / fallback).
	AllowAll bool
	// CacheTTL 0 = sin cache.
	CacheTTL time.Duration

	Transport http.RoundTripper
}

type cached struct {
	member bool
	until  time.Time
}

// Resolver implementa directory.MembershipResolver contra el registro de organizaciones.
type Resolver struct {
	client   *httpclient.Client
	allowAll bool
	ttl      time.Duration

	mu    sync.Mutex
	cache map[string]cached
	now   func() time.Time
}

var _ directory.MembershipResolver = (*Resolver)(nil)

func New(cfg Config) (*Resolver, error) {
	r := &Resolver{
		allowAll: cfg.AllowAll,
		ttl:      cfg.CacheTTL,
		cache:    make(map[string]cached),
		now:      time.Now,
	}
	if cfg.AllowAll {
		return r, nil
	}
	if strings.TrimSpace(cfg.BaseURL) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}

	h := strings.TrimSpace(cfg.APIKeyHeader)
	if h == "" {
		h = "X-Api-Key"
	}
	c, err := httpclient.New(cfg.BaseURL, cfg.Timeout,
		httpclient.WithHeader(h, strings.TrimSpace(cfg.APIKey)),
		httpclient.WithTransport(cfg.Transport),
	)
	if err != nil {
		return nil, err
	}
	r.client = c
	return r, nil
}

type membershipResponse struct {
	Member bool   `json:"member"`
	Role   string `json:"role,omitempty"`
}

func (r *Resolver) IsMember(ctx context.Context, practitionerID, organizationID string) (bool, error) {
	practitionerID = strings.TrimSpace(practitionerID)
	organizationID = strings.TrimSpace(organizationID)
	if practitionerID == "" || organizationID == "" {
		return false, nil
	}
	if r.allowAll {
		return true, nil
	}
	if r.client == nil {
		return false, ErrNotConfigured
	}

	key := organizationID + "|" + practitionerID
	if m, ok := r.fromCache(key); ok {
		return m, nil
	}

	var out membershipResponse
	path := "/v1/organizations/" + url.PathEscape(organizationID) + "/members/" + url.PathEscape(practitionerID)
	err := r.client.DoJSON(ctx, http.MethodGet, path, nil, nil, nil, &out)
	if err != nil {
		if httpclient.StatusCode(err) == http.StatusNotFound {
			r.store(key, false)
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	r.store(key, out.Member)
	return out.Member, nil
}

func (r *Resolver) fromCache(key string) (bool, bool) {
	if r.ttl <= 0 {
		return false, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cache[key]
	if !ok || !r.now().Before(c.until) {
		return false, false
	}
	return c.member, true
}

func (r *Resolver) store(key string, member bool) {
	if r.ttl <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = cached{member: member, until: r.now().Add(r.ttl)}
}
