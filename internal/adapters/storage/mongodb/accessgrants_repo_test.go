package mongodb

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"patient-access/internal/adapters/storage/storagetest"
	"patient-access/internal/domain/accessgrants"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// testClient queda nil si TEST_MONGO_URI no está seteada; los tests se saltean.
var testClient *mongo.Client

func TestMain(m *testing.M) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	client, err := Connect(ctx, uri)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mongo: %v\n", err)
		os.Exit(1)
	}

	testClient = client
	code := m.Run()
	_ = client.Disconnect(context.Background())
	os.Exit(code)
}

// testDatabase crea una base por test y la dropea al terminar.
func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	if testClient == nil {
		t.Skip("TEST_MONGO_URI not set")
	}
	name := "patient_access_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	db := testClient.Database(name)
	require.NoError(t, EnsureIndexes(context.Background(), db))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
	})
	return db
}

func TestAccessGrantsRepo_Mongo(t *testing.T) {
	if testClient == nil {
		t.Skip("TEST_MONGO_URI not set")
	}
	storagetest.RunGrantRepository(t, storagetest.GrantBackend{
		NewRepo: func(t *testing.T) accessgrants.Repository {
			return NewAccessGrantsRepo(testDatabase(t))
		},
	})
}
