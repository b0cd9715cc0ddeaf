package mongodb

import (
	"context"
	"time"

	"patient-access/internal/domain/encounters"
	"patient-access/internal/platform/apperr"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type encounterDoc struct {
	ID                      string     `bson:"_id"`
	PatientID               string     `bson:"patientId"`
	OrganizationID          string     `bson:"organizationId"`
	AttendingPractitionerID string     `bson:"attendingPractitionerId"`
	Type                    string     `bson:"type"`
	Status                  string     `bson:"status"`
	Reason                  string     `bson:"reason,omitempty"`
	Notes                   string     `bson:"notes,omitempty"`
	Diagnosis               string     `bson:"diagnosis,omitempty"`
	OccurredAt              time.Time  `bson:"occurredAt"`
	RecordedAt              time.Time  `bson:"recordedAt"`
	FinishedAt              *time.Time `bson:"finishedAt,omitempty"`
}

func (d encounterDoc) toDomain() encounters.Encounter {
	return encounters.Encounter{
		ID:                      d.ID,
		PatientID:               d.PatientID,
		OrganizationID:          d.OrganizationID,
		AttendingPractitionerID: d.AttendingPractitionerID,
		Type:                    encounters.EncounterType(d.Type),
		Status:                  encounters.Status(d.Status),
		Reason:                  d.Reason,
		Notes:                   d.Notes,
		Diagnosis:               d.Diagnosis,
		OccurredAt:              d.OccurredAt,
		RecordedAt:              d.RecordedAt,
		FinishedAt:              d.FinishedAt,
	}
}

type EncountersRepo struct {
	col *mongo.Collection
}

func NewEncountersRepo(db *mongo.Database) *EncountersRepo {
	return &EncountersRepo{col: db.Collection(colEncounters)}
}

func (r *EncountersRepo) Create(ctx context.Context, e encounters.Encounter) error {
	_, err := r.col.InsertOne(ctx, encounterDoc{
		ID:                      e.ID,
		PatientID:               e.PatientID,
		OrganizationID:          e.OrganizationID,
		AttendingPractitionerID: e.AttendingPractitionerID,
		Type:                    string(e.Type),
		Status:                  string(e.Status),
		Reason:                  e.Reason,
		Notes:                   e.Notes,
		Diagnosis:               e.Diagnosis,
		OccurredAt:              e.OccurredAt,
		RecordedAt:              e.RecordedAt,
		FinishedAt:              e.FinishedAt,
	})
	return err
}

func (r *EncountersRepo) GetByID(ctx context.Context, id string) (encounters.Encounter, error) {
	var d encounterDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if isNoDocuments(err) {
			return encounters.Encounter{}, apperr.ErrNotFound
		}
		return encounters.Encounter{}, err
	}
	return d.toDomain(), nil
}

func (r *EncountersRepo) ListByPatient(ctx context.Context, patientID string, filter encounters.ListFilter) ([]encounters.Encounter, error) {
	q := bson.M{"patientId": patientID}
	if len(filter.Types) > 0 {
		types := make([]string, 0, len(filter.Types))
		for _, t := range filter.Types {
			types = append(types, string(t))
		}
		q["type"] = bson.M{"$in": types}
	}
	occurred := bson.M{}
	if filter.From != nil {
		occurred["$gte"] = *filter.From
	}
	if filter.To != nil {
		occurred["$lte"] = *filter.To
	}
	if len(occurred) > 0 {
		q["occurredAt"] = occurred
	}
	if filter.PractitionerID != "" {
		q["attendingPractitionerId"] = filter.PractitionerID
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	cur, err := r.col.Find(ctx, q, options.Find().
		SetSort(bson.D{{Key: "occurredAt", Value: -1}}).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []encounterDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]encounters.Encounter, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (r *EncountersRepo) Finish(ctx context.Context, id string, f encounters.Finish) (encounters.Encounter, error) {
	set := bson.M{"status": string(encounters.StatusFinished), "finishedAt": f.At}
	if f.Diagnosis != "" {
		set["diagnosis"] = f.Diagnosis
	}
	if f.Notes != "" {
		set["notes"] = f.Notes
	}

	var d encounterDoc
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": string(encounters.StatusInProgress)},
		bson.M{"$set": set},
		afterUpdate(),
	).Decode(&d)
	if isNoDocuments(err) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return encounters.Encounter{}, getErr
		}
		return encounters.Encounter{}, encounters.ErrAlreadyFinished
	}
	if err != nil {
		return encounters.Encounter{}, err
	}
	return d.toDomain(), nil
}
