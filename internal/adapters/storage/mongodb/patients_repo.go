package mongodb

import (
	"context"
	"time"

	"patient-access/internal/domain/patients"
	"patient-access/internal/platform/apperr"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type patientDoc struct {
	ID                string     `bson:"_id"`
	UserID            string     `bson:"userId"`
	DigitalIdentifier string     `bson:"digitalIdentifier"`
	FullName          string     `bson:"fullName"`
	BirthDate         *time.Time `bson:"birthDate,omitempty"`
	Sex               string     `bson:"sex"`
	BloodType         string     `bson:"bloodType,omitempty"`
	Notes             string     `bson:"notes,omitempty"`
	CreatedAt         time.Time  `bson:"createdAt"`
	UpdatedAt         time.Time  `bson:"updatedAt"`
}

func (d patientDoc) toDomain() patients.Patient {
	return patients.Patient{
		ID:                d.ID,
		UserID:            d.UserID,
		DigitalIdentifier: d.DigitalIdentifier,
		FullName:          d.FullName,
		BirthDate:         d.BirthDate,
		Sex:               patients.Sex(d.Sex),
		BloodType:         d.BloodType,
		Notes:             d.Notes,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

type PatientsRepo struct {
	col *mongo.Collection
}

func NewPatientsRepo(db *mongo.Database) *PatientsRepo {
	return &PatientsRepo{col: db.Collection(colPatients)}
}

func (r *PatientsRepo) Create(ctx context.Context, p patients.Patient) error {
	_, err := r.col.InsertOne(ctx, patientDoc{
		ID:                p.ID,
		UserID:            p.UserID,
		DigitalIdentifier: p.DigitalIdentifier,
		FullName:          p.FullName,
		BirthDate:         p.BirthDate,
		Sex:               string(p.Sex),
		BloodType:         p.BloodType,
		Notes:             p.Notes,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return patients.ErrAlreadyRegistered
	}
	return err
}

func (r *PatientsRepo) Update(ctx context.Context, p patients.Patient) error {
	set := bson.M{
		"fullName":  p.FullName,
		"sex":       string(p.Sex),
		"bloodType": p.BloodType,
		"notes":     p.Notes,
		"updatedAt": p.UpdatedAt,
	}
	update := bson.M{"$set": set}
	if p.BirthDate != nil {
		set["birthDate"] = *p.BirthDate
	} else {
		update["$unset"] = bson.M{"birthDate": ""}
	}

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": p.ID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *PatientsRepo) GetByID(ctx context.Context, id string) (patients.Patient, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *PatientsRepo) GetByUserID(ctx context.Context, userID string) (patients.Patient, error) {
	return r.findOne(ctx, bson.M{"userId": userID})
}

func (r *PatientsRepo) GetByDigitalIdentifier(ctx context.Context, digitalIdentifier string) (patients.Patient, error) {
	return r.findOne(ctx, bson.M{"digitalIdentifier": digitalIdentifier})
}

func (r *PatientsRepo) findOne(ctx context.Context, filter bson.M) (patients.Patient, error) {
	var d patientDoc
	if err := r.col.FindOne(ctx, filter).Decode(&d); err != nil {
		if isNoDocuments(err) {
			return patients.Patient{}, apperr.ErrNotFound
		}
		return patients.Patient{}, err
	}
	return d.toDomain(), nil
}
