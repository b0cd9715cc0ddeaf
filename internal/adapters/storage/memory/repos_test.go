package memory

import (
	"context"
	"testing"
	"time"

	"patient-access/internal/domain/encounters"
	"patient-access/internal/domain/notifications"
	"patient-access/internal/domain/patients"
	"patient-access/internal/domain/prescriptions"
	"patient-access/internal/platform/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatientRepo_Indexes(t *testing.T) {
	ctx := context.Background()
	repo := NewPatientRepo()
	p := patients.Patient{ID: "pat-1", UserID: "user-1", DigitalIdentifier: "HID-1", FullName: "Ana"}
	require.NoError(t, repo.Create(ctx, p))

	dup := p
	dup.ID = "pat-2"
	dup.DigitalIdentifier = "HID-2"
	assert.ErrorIs(t, repo.Create(ctx, dup), apperr.ErrInvalidState)

	got, err := repo.GetByDigitalIdentifier(ctx, "HID-1")
	require.NoError(t, err)
	assert.Equal(t, "pat-1", got.ID)

	p.FullName = "Ana María"
	p.DigitalIdentifier = "HID-changed"
	require.NoError(t, repo.Update(ctx, p))
	got, err = repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana María", got.FullName)
	assert.Equal(t, "HID-1", got.DigitalIdentifier)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEncounterRepo_ListAndFinish(t *testing.T) {
	ctx := context.Background()
	repo := NewEncounterRepo()
	for i, typ := range []encounters.EncounterType{encounters.TypeConsultation, encounters.TypeEmergency, encounters.TypeConsultation} {
		require.NoError(t, repo.Create(ctx, encounters.Encounter{
			ID:                      string(rune('a' + i)),
			PatientID:               "pat-1",
			AttendingPractitionerID: "doc-1",
			Type:                    typ,
			Status:                  encounters.StatusInProgress,
			OccurredAt:              t0.Add(time.Duration(i) * time.Hour),
		}))
	}

	out, err := repo.ListByPatient(ctx, "pat-1", encounters.ListFilter{Types: []encounters.EncounterType{encounters.TypeConsultation}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c", out[0].ID)

	e, err := repo.Finish(ctx, "a", encounters.Finish{Diagnosis: "gripe", At: t0})
	require.NoError(t, err)
	assert.Equal(t, encounters.StatusFinished, e.Status)

	_, err = repo.Finish(ctx, "a", encounters.Finish{At: t0})
	assert.ErrorIs(t, err, encounters.ErrAlreadyFinished)
}

func TestPrescriptionRepo_DispenseOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewPrescriptionRepo()
	require.NoError(t, repo.Create(ctx, prescriptions.Prescription{ID: "rx-1", PatientID: "pat-1", PrescriberID: "doc-1", Status: prescriptions.StatusActive}))

	p, err := repo.MarkDispensed(ctx, "rx-1", "pharm-1", t0)
	require.NoError(t, err)
	assert.Equal(t, "pharm-1", p.DispensedBy)

	_, err = repo.MarkDispensed(ctx, "rx-1", "pharm-2", t0)
	assert.ErrorIs(t, err, prescriptions.ErrAlreadyDispensed)

	mine, err := repo.ListByPatient(ctx, "pat-1", "doc-2")
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestNotificationRepo_MarkReadOwnership(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepo()
	require.NoError(t, repo.Create(ctx, notifications.Notification{ID: "n1", UserID: "u1", CreatedAt: t0}))

	_, err := repo.MarkRead(ctx, "n1", "u2", t0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	n, err := repo.MarkRead(ctx, "n1", "u1", t0)
	require.NoError(t, err)
	require.NotNil(t, n.ReadAt)

	unread, err := repo.ListByUser(ctx, "u1", true)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
