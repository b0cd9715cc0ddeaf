package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	colPatients      = "patients"
	colGrants        = "access_grants"
	colEncounters    = "encounters"
	colPrescriptions = "prescriptions"
	colAudit         = "audit_log"
	colNotifications = "notifications"
)

// Connect abre el cliente y verifica con un ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetTimeout(5 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// EnsureIndexes crea los índices que sostienen las búsquedas y la unicidad.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	idx := map[string][]mongo.IndexModel{
		colPatients: {
			{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "digitalIdentifier", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colGrants: {
			{Keys: bson.D{{Key: "patientId", Value: 1}, {Key: "organizationId", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "requestingPractitionerId", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}}},
		},
		colEncounters: {
			{Keys: bson.D{{Key: "patientId", Value: 1}, {Key: "occurredAt", Value: -1}}},
		},
		colPrescriptions: {
			{Keys: bson.D{{Key: "patientId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "encounterId", Value: 1}}},
		},
		colAudit: {
			{Keys: bson.D{{Key: "patientId", Value: 1}, {Key: "recordedAt", Value: -1}}},
		},
		colNotifications: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
	for col, models := range idx {
		if _, err := db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", col, err)
		}
	}
	return nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func afterUpdate() *options.FindOneAndUpdateOptionsBuilder {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}
