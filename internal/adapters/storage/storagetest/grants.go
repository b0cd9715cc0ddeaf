// Package storagetest tiene el contrato que todo backend de accessgrants.Repository debe cumplir.
// Lo corren los tests de memory, postgres y mongodb.
package storagetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"patient-access/internal/domain/accessgrants"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// T0 está truncado al segundo: Postgres guarda microsegundos y Mongo milisegundos.
var T0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// GrantBackend arma un repo limpio. SeedPatient crea el paciente cuando el backend tiene FK.
type GrantBackend struct {
	NewRepo     func(t *testing.T) accessgrants.Repository
	SeedPatient func(t *testing.T, patientID string)
}

func (b GrantBackend) setup(t *testing.T) (accessgrants.Repository, string) {
	t.Helper()
	repo := b.NewRepo(t)
	patientID := "pat-" + uuid.NewString()
	if b.SeedPatient != nil {
		b.SeedPatient(t, patientID)
	}
	return repo, patientID
}

func newGrant(patientID string, status accessgrants.Status, expiresAt time.Time) accessgrants.Grant {
	return accessgrants.Grant{
		ID:                       uuid.NewString(),
		PatientID:                patientID,
		OrganizationID:           "org-1",
		RequestingPractitionerID: "doc-1",
		Status:                   status,
		Scope:                    accessgrants.AccessScope{CanViewMedicalHistory: true},
		TimeWindowHours:          24,
		CreatedAt:                T0,
		UpdatedAt:                T0,
		ExpiresAt:                expiresAt,
	}
}

func approveOf(g accessgrants.Grant) accessgrants.Transition {
	exp := T0.Add(24 * time.Hour)
	at := T0
	return accessgrants.Transition{
		GrantID:   g.ID,
		PatientID: g.PatientID,
		From:      []accessgrants.Status{accessgrants.StatusPending},
		To:        accessgrants.StatusActive,
		At:        T0,
		GrantedAt: &at,
		ExpiresAt: &exp,
	}
}

func revokeOf(g accessgrants.Grant, from accessgrants.Status) accessgrants.Transition {
	at := T0
	return accessgrants.Transition{
		GrantID:   g.ID,
		PatientID: g.PatientID,
		From:      []accessgrants.Status{from},
		To:        accessgrants.StatusRevoked,
		At:        T0,
		RevokedAt: &at,
	}
}

func statusOf(t *testing.T, repo accessgrants.Repository, id string) accessgrants.Status {
	t.Helper()
	g, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return g.Status
}

// RunGrantRepository corre el contrato completo contra un backend.
func RunGrantRepository(t *testing.T, b GrantBackend) {
	t.Run("transition is conditional", func(t *testing.T) {
		ctx := context.Background()
		repo, patientID := b.setup(t)
		g := newGrant(patientID, accessgrants.StatusPending, T0.Add(24*time.Hour))
		require.NoError(t, repo.Create(ctx, g))

		updated, err := repo.Transition(ctx, approveOf(g))
		require.NoError(t, err)
		assert.Equal(t, accessgrants.StatusActive, updated.Status)
		require.NotNil(t, updated.GrantedAt)
		assert.True(t, updated.ExpiresAt.Equal(T0.Add(24*time.Hour)))

		_, err = repo.Transition(ctx, approveOf(g))
		assert.ErrorIs(t, err, accessgrants.ErrStateConflict)

		other := revokeOf(g, accessgrants.StatusActive)
		other.PatientID = "pat-other"
		_, err = repo.Transition(ctx, other)
		assert.ErrorIs(t, err, accessgrants.ErrStateConflict)

		missing := approveOf(g)
		missing.GrantID = uuid.NewString()
		_, err = repo.Transition(ctx, missing)
		assert.ErrorIs(t, err, accessgrants.ErrStateConflict)
	})

	t.Run("deny from observed PENDING loses after approve", func(t *testing.T) {
		ctx := context.Background()
		repo, patientID := b.setup(t)
		g := newGrant(patientID, accessgrants.StatusPending, T0.Add(24*time.Hour))
		require.NoError(t, repo.Create(ctx, g))

		_, err := repo.Transition(ctx, approveOf(g))
		require.NoError(t, err)

		_, err = repo.Transition(ctx, revokeOf(g, accessgrants.StatusPending))
		assert.ErrorIs(t, err, accessgrants.ErrStateConflict)
		assert.Equal(t, accessgrants.StatusActive, statusOf(t, repo, g.ID))
	})

	t.Run("expired ACTIVE cannot be revoked", func(t *testing.T) {
		ctx := context.Background()
		repo, patientID := b.setup(t)
		g := newGrant(patientID, accessgrants.StatusActive, T0.Add(-time.Hour))
		require.NoError(t, repo.Create(ctx, g))

		_, err := repo.Transition(ctx, revokeOf(g, accessgrants.StatusActive))
		assert.ErrorIs(t, err, accessgrants.ErrStateConflict)
		assert.Equal(t, accessgrants.StatusActive, statusOf(t, repo, g.ID))
	})

	t.Run("expire stale only touches ACTIVE past expiry", func(t *testing.T) {
		ctx := context.Background()
		repo, patientID := b.setup(t)
		stale := newGrant(patientID, accessgrants.StatusActive, T0.Add(-time.Minute))
		fresh := newGrant(patientID, accessgrants.StatusActive, T0.Add(time.Hour))
		waiting := newGrant(patientID, accessgrants.StatusPending, T0.Add(-time.Minute))
		for _, g := range []accessgrants.Grant{stale, fresh, waiting} {
			require.NoError(t, repo.Create(ctx, g))
		}

		n, err := repo.ExpireStale(ctx, T0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)

		assert.Equal(t, accessgrants.StatusExpired, statusOf(t, repo, stale.ID))
		assert.Equal(t, accessgrants.StatusActive, statusOf(t, repo, fresh.ID))
		assert.Equal(t, accessgrants.StatusPending, statusOf(t, repo, waiting.ID))

		active, err := repo.FindActive(ctx, patientID, "org-1", T0)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, fresh.ID, active[0].ID)
	})

	t.Run("concurrent decisions have a single winner", func(t *testing.T) {
		ctx := context.Background()
		repo, patientID := b.setup(t)
		g := newGrant(patientID, accessgrants.StatusPending, T0.Add(24*time.Hour))
		require.NoError(t, repo.Create(ctx, g))

		var (
			wins atomic.Int32
			wg   sync.WaitGroup
		)
		start := make(chan struct{})
		for i := 0; i < 10; i++ {
			tr := approveOf(g)
			if i%2 == 0 {
				tr = revokeOf(g, accessgrants.StatusPending)
			}
			wg.Add(1)
			go func(tr accessgrants.Transition) {
				defer wg.Done()
				<-start
				if _, err := repo.Transition(ctx, tr); err == nil {
					wins.Add(1)
				}
			}(tr)
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
	})
}
