package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/platform/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepo struct {
	mu    sync.Mutex
	items []Notification
}

func (r *testRepo) Create(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	return nil
}

func (r *testRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, 0)
	for _, n := range r.items {
		if n.UserID != userID || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *testRepo) MarkRead(ctx context.Context, id, userID string, at time.Time) (Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.items {
		if n.ID == id && n.UserID == userID {
			if n.ReadAt == nil {
				r.items[i].ReadAt = &at
			}
			return r.items[i], nil
		}
	}
	return Notification{}, apperr.ErrNotFound
}

type owners map[string]string

func (o owners) OwnerOf(ctx context.Context, patientID string) (string, error) {
	if u, ok := o[patientID]; ok {
		return u, nil
	}
	return "", apperr.ErrNotFound
}

type testPublisher struct {
	events []Event
	err    error
}

func (p *testPublisher) Publish(ctx context.Context, e Event) error {
	p.events = append(p.events, e)
	return p.err
}

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestService(pub Publisher) (*Service, *testRepo) {
	repo := &testRepo{}
	svc := NewService(repo, owners{"pat-1": "user-pat-1"}, pub, nil)
	svc.now = func() time.Time { return now }
	return svc, repo
}

func pendingGrant() accessgrants.Grant {
	return accessgrants.Grant{
		ID:                       "g1",
		PatientID:                "pat-1",
		OrganizationID:           "org-1",
		RequestingPractitionerID: "doc-1",
		Status:                   accessgrants.StatusPending,
		TimeWindowHours:          24,
	}
}

func TestService_AccessRequested_NotifiesPatientOwner(t *testing.T) {
	pub := &testPublisher{}
	svc, _ := newTestService(pub)

	require.NoError(t, svc.AccessRequested(context.Background(), pendingGrant()))

	items, err := svc.ListForUser(context.Background(), "user-pat-1", true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, TypeAccessRequested, items[0].Type)
	assert.Equal(t, "g1", items[0].GrantID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "PENDING", pub.events[0].GrantStatus)
	assert.Equal(t, items[0].ID, pub.events[0].NotificationID)
}

func TestService_AccessRequested_UnknownPatient(t *testing.T) {
	svc, repo := newTestService(nil)
	g := pendingGrant()
	g.PatientID = "pat-404"

	err := svc.AccessRequested(context.Background(), g)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, repo.items)
}

func TestService_AccessDecided_Types(t *testing.T) {
	granted := now.Add(-time.Hour)

	cases := []struct {
		name   string
		status accessgrants.Status
		grant  *time.Time
		want   Type
	}{
		{"approved", accessgrants.StatusActive, &granted, TypeAccessApproved},
		{"denied", accessgrants.StatusRevoked, nil, TypeAccessDenied},
		{"revoked", accessgrants.StatusRevoked, &granted, TypeAccessRevoked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo := newTestService(nil)
			g := pendingGrant()
			g.Status = tc.status
			g.GrantedAt = tc.grant

			require.NoError(t, svc.AccessDecided(context.Background(), g))
			require.Len(t, repo.items, 1)
			assert.Equal(t, tc.want, repo.items[0].Type)
			assert.Equal(t, "doc-1", repo.items[0].UserID)
		})
	}
}

func TestService_PublishFailureKeepsInbox(t *testing.T) {
	svc, repo := newTestService(&testPublisher{err: errors.New("channel closed")})

	require.NoError(t, svc.AccessRequested(context.Background(), pendingGrant()))
	assert.Len(t, repo.items, 1)
}

func TestService_MarkRead(t *testing.T) {
	svc, _ := newTestService(nil)
	require.NoError(t, svc.AccessRequested(context.Background(), pendingGrant()))
	items, err := svc.ListForUser(context.Background(), "user-pat-1", false)
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = svc.MarkRead(context.Background(), "someone-else", items[0].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	n, err := svc.MarkRead(context.Background(), "user-pat-1", items[0].ID)
	require.NoError(t, err)
	require.NotNil(t, n.ReadAt)
	assert.Equal(t, now, *n.ReadAt)

	unread, err := svc.ListForUser(context.Background(), "user-pat-1", true)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
