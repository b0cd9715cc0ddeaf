package mongodb

import (
	"context"
	"time"

	"patient-access/internal/domain/prescriptions"
	"patient-access/internal/platform/apperr"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type medicationDoc struct {
	Name      string `bson:"name"`
	Dosage    string `bson:"dosage"`
	DoseUnit  string `bson:"doseUnit,omitempty"`
	Route     string `bson:"route,omitempty"`
	Frequency string `bson:"frequency,omitempty"`
}

type prescriptionDoc struct {
	ID             string        `bson:"_id"`
	EncounterID    string        `bson:"encounterId"`
	PatientID      string        `bson:"patientId"`
	OrganizationID string        `bson:"organizationId"`
	PrescriberID   string        `bson:"prescriberId"`
	Medication     medicationDoc `bson:"medication"`
	StartDate      time.Time     `bson:"startDate"`
	EndDate        *time.Time    `bson:"endDate,omitempty"`
	Notes          string        `bson:"notes,omitempty"`
	Status         string        `bson:"status"`
	CreatedAt      time.Time     `bson:"createdAt"`
	DispensedAt    *time.Time    `bson:"dispensedAt,omitempty"`
	DispensedBy    string        `bson:"dispensedBy,omitempty"`
}

func (d prescriptionDoc) toDomain() prescriptions.Prescription {
	return prescriptions.Prescription{
		ID:             d.ID,
		EncounterID:    d.EncounterID,
		PatientID:      d.PatientID,
		OrganizationID: d.OrganizationID,
		PrescriberID:   d.PrescriberID,
		Medication:     prescriptions.Medication(d.Medication),
		StartDate:      d.StartDate,
		EndDate:        d.EndDate,
		Notes:          d.Notes,
		Status:         prescriptions.Status(d.Status),
		CreatedAt:      d.CreatedAt,
		DispensedAt:    d.DispensedAt,
		DispensedBy:    d.DispensedBy,
	}
}

type PrescriptionsRepo struct {
	col *mongo.Collection
}

func NewPrescriptionsRepo(db *mongo.Database) *PrescriptionsRepo {
	return &PrescriptionsRepo{col: db.Collection(colPrescriptions)}
}

func (r *PrescriptionsRepo) Create(ctx context.Context, p prescriptions.Prescription) error {
	_, err := r.col.InsertOne(ctx, prescriptionDoc{
		ID:             p.ID,
		EncounterID:    p.EncounterID,
		PatientID:      p.PatientID,
		OrganizationID: p.OrganizationID,
		PrescriberID:   p.PrescriberID,
		Medication:     medicationDoc(p.Medication),
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		Notes:          p.Notes,
		Status:         string(p.Status),
		CreatedAt:      p.CreatedAt,
		DispensedAt:    p.DispensedAt,
		DispensedBy:    p.DispensedBy,
	})
	return err
}

func (r *PrescriptionsRepo) GetByID(ctx context.Context, id string) (prescriptions.Prescription, error) {
	var d prescriptionDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if isNoDocuments(err) {
			return prescriptions.Prescription{}, apperr.ErrNotFound
		}
		return prescriptions.Prescription{}, err
	}
	return d.toDomain(), nil
}

func (r *PrescriptionsRepo) ListByPatient(ctx context.Context, patientID, prescriberID string) ([]prescriptions.Prescription, error) {
	q := bson.M{"patientId": patientID}
	if prescriberID != "" {
		q["prescriberId"] = prescriberID
	}
	return r.find(ctx, q)
}

func (r *PrescriptionsRepo) ListByEncounter(ctx context.Context, encounterID string) ([]prescriptions.Prescription, error) {
	return r.find(ctx, bson.M{"encounterId": encounterID})
}

func (r *PrescriptionsRepo) MarkDispensed(ctx context.Context, id, pharmacistID string, at time.Time) (prescriptions.Prescription, error) {
	var d prescriptionDoc
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": string(prescriptions.StatusActive)},
		bson.M{"$set": bson.M{
			"status":      string(prescriptions.StatusDispensed),
			"dispensedAt": at,
			"dispensedBy": pharmacistID,
		}},
		afterUpdate(),
	).Decode(&d)
	if isNoDocuments(err) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return prescriptions.Prescription{}, getErr
		}
		return prescriptions.Prescription{}, prescriptions.ErrAlreadyDispensed
	}
	if err != nil {
		return prescriptions.Prescription{}, err
	}
	return d.toDomain(), nil
}

func (r *PrescriptionsRepo) find(ctx context.Context, filter bson.M) ([]prescriptions.Prescription, error) {
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []prescriptionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]prescriptions.Prescription, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}
