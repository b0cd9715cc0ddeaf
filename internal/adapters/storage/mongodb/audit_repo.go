package mongodb

import (
	"context"
	"time"

	"patient-access/internal/domain/audit"
	"patient-access/internal/ports/auditlog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type auditDoc struct {
	ID             string    `bson:"_id"`
	PatientID      string    `bson:"patientId"`
	ActorUserID    string    `bson:"actorUserId,omitempty"`
	ActorRole      string    `bson:"actorRole,omitempty"`
	OrganizationID string    `bson:"organizationId,omitempty"`
	Action         string    `bson:"action"`
	ResourceType   string    `bson:"resourceType,omitempty"`
	ResourceID     string    `bson:"resourceId,omitempty"`
	Outcome        string    `bson:"outcome"`
	Detail         string    `bson:"detail,omitempty"`
	IPAddress      string    `bson:"ipAddress,omitempty"`
	UserAgent      string    `bson:"userAgent,omitempty"`
	OccurredAt     time.Time `bson:"occurredAt"`
	RecordedAt     time.Time `bson:"recordedAt"`
}

type AuditRepo struct {
	col *mongo.Collection
}

func NewAuditRepo(db *mongo.Database) *AuditRepo {
	return &AuditRepo{col: db.Collection(colAudit)}
}

func (r *AuditRepo) Append(ctx context.Context, rec audit.Record) error {
	_, err := r.col.InsertOne(ctx, auditDoc{
		ID:             rec.ID,
		PatientID:      rec.PatientID,
		ActorUserID:    rec.ActorUserID,
		ActorRole:      rec.ActorRole,
		OrganizationID: rec.OrganizationID,
		Action:         rec.Action,
		ResourceType:   rec.ResourceType,
		ResourceID:     rec.ResourceID,
		Outcome:        string(rec.Outcome),
		Detail:         rec.Detail,
		IPAddress:      rec.IPAddress,
		UserAgent:      rec.UserAgent,
		OccurredAt:     rec.OccurredAt,
		RecordedAt:     rec.RecordedAt,
	})
	return err
}

func (r *AuditRepo) ListByPatient(ctx context.Context, patientID string, limit int) ([]audit.Record, error) {
	cur, err := r.col.Find(ctx, bson.M{"patientId": patientID}, options.Find().
		SetSort(bson.D{{Key: "recordedAt", Value: -1}}).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []auditDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]audit.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, audit.Record{
			ID: d.ID,
			Entry: auditlog.Entry{
				PatientID:      d.PatientID,
				ActorUserID:    d.ActorUserID,
				ActorRole:      d.ActorRole,
				OrganizationID: d.OrganizationID,
				Action:         d.Action,
				ResourceType:   d.ResourceType,
				ResourceID:     d.ResourceID,
				Outcome:        auditlog.Outcome(d.Outcome),
				Detail:         d.Detail,
				IPAddress:      d.IPAddress,
				UserAgent:      d.UserAgent,
				OccurredAt:     d.OccurredAt,
			},
			RecordedAt: d.RecordedAt,
		})
	}
	return out, nil
}
