package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"patient-access/internal/adapters/storage/storagetest"
	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/domain/patients"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// testDB queda nil si TEST_POSTGRES_DSN no está seteada; los tests se saltean.
var testDB *sql.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		os.Exit(m.Run())
	}

	db, err := Open(dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = Migrate(ctx, db)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	testDB = db
	code := m.Run()
	_ = db.Close()
	os.Exit(code)
}

func requireDB(t *testing.T) *sql.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	return testDB
}

func seedPatient(t *testing.T, id string) {
	t.Helper()
	now := time.Now().UTC()
	err := NewPatientsRepo(requireDB(t)).Create(context.Background(), patients.Patient{
		ID:                id,
		UserID:            "user-" + uuid.NewString(),
		DigitalIdentifier: "qr-" + uuid.NewString(),
		FullName:          "Integration Patient",
		Sex:               patients.SexUnknown,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	require.NoError(t, err)
}

func TestAccessGrantsRepo_Postgres(t *testing.T) {
	requireDB(t)
	storagetest.RunGrantRepository(t, storagetest.GrantBackend{
		NewRepo: func(t *testing.T) accessgrants.Repository {
			return NewAccessGrantsRepo(requireDB(t))
		},
		SeedPatient: seedPatient,
	})
}
