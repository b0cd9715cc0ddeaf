package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"patient-access/internal/adapters/storage/storagetest"
	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/platform/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func pending(id string) accessgrants.Grant {
	return accessgrants.Grant{
		ID:                       id,
		PatientID:                "pat-1",
		OrganizationID:           "org-1",
		RequestingPractitionerID: "doc-1",
		Status:                   accessgrants.StatusPending,
		TimeWindowHours:          24,
		CreatedAt:                t0,
		UpdatedAt:                t0,
		ExpiresAt:                t0.Add(24 * time.Hour),
	}
}

func TestGrantRepo_TransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	repo := NewAccessGrantsRepo()
	require.NoError(t, repo.Create(ctx, pending("g1")))

	exp := t0.Add(24 * time.Hour)
	approve := accessgrants.Transition{
		GrantID: "g1", PatientID: "pat-1",
		From: []accessgrants.Status{accessgrants.StatusPending},
		To:   accessgrants.StatusActive, At: t0,
		GrantedAt: &t0, ExpiresAt: &exp,
	}

	g, err := repo.Transition(ctx, approve)
	require.NoError(t, err)
	assert.Equal(t, accessgrants.StatusActive, g.Status)

	_, err = repo.Transition(ctx, approve)
	assert.ErrorIs(t, err, accessgrants.ErrStateConflict)

	wrongPatient := approve
	wrongPatient.PatientID = "pat-2"
	wrongPatient.From = []accessgrants.Status{accessgrants.StatusActive}
	_, err = repo.Transition(ctx, wrongPatient)
	assert.ErrorIs(t, err, accessgrants.ErrStateConflict)

	_, err = repo.Transition(ctx, accessgrants.Transition{GrantID: "nope", PatientID: "pat-1"})
	assert.ErrorIs(t, err, accessgrants.ErrStateConflict)
}

func TestGrantRepo_ConcurrentDecisionsSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewAccessGrantsRepo()
	require.NoError(t, repo.Create(ctx, pending("g1")))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		to := accessgrants.StatusActive
		if i%2 == 0 {
			to = accessgrants.StatusRevoked
		}
		go func(to accessgrants.Status) {
			defer wg.Done()
			_, err := repo.Transition(ctx, accessgrants.Transition{
				GrantID: "g1", PatientID: "pat-1",
				From: []accessgrants.Status{accessgrants.StatusPending},
				To:   to, At: t0,
			})
			if err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}(to)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestGrantRepo_ExpireStaleAndCounts(t *testing.T) {
	ctx := context.Background()
	repo := NewAccessGrantsRepo()

	stale := pending("stale")
	stale.Status = accessgrants.StatusActive
	stale.ExpiresAt = t0.Add(-time.Minute)
	fresh := pending("fresh")
	fresh.Status = accessgrants.StatusActive
	fresh.ExpiresAt = t0.Add(time.Hour)

	for _, g := range []accessgrants.Grant{stale, fresh, pending("p1")} {
		require.NoError(t, repo.Create(ctx, g))
	}

	active, err := repo.FindActive(ctx, "pat-1", "org-1", t0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "fresh", active[0].ID)

	n, err := repo.ExpireStale(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[accessgrants.StatusExpired])
	assert.Equal(t, 1, counts[accessgrants.StatusActive])
	assert.Equal(t, 1, counts[accessgrants.StatusPending])

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGrantRepo_UpdatePendingOnlyWhilePending(t *testing.T) {
	ctx := context.Background()
	repo := NewAccessGrantsRepo()
	g := pending("g1")
	require.NoError(t, repo.Create(ctx, g))

	g.Scope.CanViewPrescriptions = true
	g.UpdatedAt = t0.Add(time.Minute)
	require.NoError(t, repo.UpdatePending(ctx, g))

	got, err := repo.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, got.Scope.CanViewPrescriptions)

	_, err = repo.Transition(ctx, accessgrants.Transition{
		GrantID: "g1", PatientID: "pat-1",
		From: []accessgrants.Status{accessgrants.StatusPending},
		To:   accessgrants.StatusRevoked, At: t0,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, repo.UpdatePending(ctx, g), accessgrants.ErrStateConflict)
}

func TestRequestLock(t *testing.T) {
	ctx := context.Background()
	lock := NewRequestLock()
	now := t0
	lock.clock = func() time.Time { return now }

	release, ok, err := lock.TryAcquire(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = lock.TryAcquire(ctx, "k", 10*time.Second)
	assert.False(t, ok)

	release()
	release2, ok, _ := lock.TryAcquire(ctx, "k", 10*time.Second)
	require.True(t, ok)

	// vencido: otro lo puede tomar y el release viejo no lo pisa
	now = now.Add(11 * time.Second)
	_, ok, _ = lock.TryAcquire(ctx, "k", 10*time.Second)
	require.True(t, ok)
	release2()
	_, ok, _ = lock.TryAcquire(ctx, "k", 10*time.Second)
	assert.False(t, ok)
}

func TestGrantRepo_Contract(t *testing.T) {
	storagetest.RunGrantRepository(t, storagetest.GrantBackend{
		NewRepo: func(*testing.T) accessgrants.Repository { return NewAccessGrantsRepo() },
	})
}
