package mongodb

import (
	"context"
	"time"

	"patient-access/internal/domain/accessgrants"
	"patient-access/internal/platform/apperr"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type grantDoc struct {
	ID                       string     `bson:"_id"`
	PatientID                string     `bson:"patientId"`
	OrganizationID           string     `bson:"organizationId"`
	RequestingPractitionerID string     `bson:"requestingPractitionerId"`
	Status                   string     `bson:"status"`
	Scope                    scopeDoc   `bson:"scope"`
	TimeWindowHours          int        `bson:"timeWindowHours"`
	CreatedAt                time.Time  `bson:"createdAt"`
	UpdatedAt                time.Time  `bson:"updatedAt"`
	GrantedAt                *time.Time `bson:"grantedAt,omitempty"`
	ExpiresAt                time.Time  `bson:"expiresAt"`
	RevokedAt                *time.Time `bson:"revokedAt,omitempty"`
	Reason                   string     `bson:"reason,omitempty"`
	Metadata                 metaDoc    `bson:"requestMetadata"`
}

type scopeDoc struct {
	CanViewMedicalHistory bool `bson:"canViewMedicalHistory"`
	CanViewPrescriptions  bool `bson:"canViewPrescriptions"`
	CanCreateEncounters   bool `bson:"canCreateEncounters"`
	CanViewAuditLogs      bool `bson:"canViewAuditLogs"`
}

type metaDoc struct {
	IPAddress  string `bson:"ipAddress,omitempty"`
	UserAgent  string `bson:"userAgent,omitempty"`
	DeviceInfo string `bson:"deviceInfo,omitempty"`
}

func toGrantDoc(g accessgrants.Grant) grantDoc {
	return grantDoc{
		ID:                       g.ID,
		PatientID:                g.PatientID,
		OrganizationID:           g.OrganizationID,
		RequestingPractitionerID: g.RequestingPractitionerID,
		Status:                   string(g.Status),
		Scope:                    scopeDoc(g.Scope),
		TimeWindowHours:          g.TimeWindowHours,
		CreatedAt:                g.CreatedAt,
		UpdatedAt:                g.UpdatedAt,
		GrantedAt:                g.GrantedAt,
		ExpiresAt:                g.ExpiresAt,
		RevokedAt:                g.RevokedAt,
		Reason:                   g.Reason,
		Metadata:                 metaDoc(g.RequestMetadata),
	}
}

func (d grantDoc) toDomain() accessgrants.Grant {
	return accessgrants.Grant{
		ID:                       d.ID,
		PatientID:                d.PatientID,
		OrganizationID:           d.OrganizationID,
		RequestingPractitionerID: d.RequestingPractitionerID,
		Status:                   accessgrants.Status(d.Status),
		Scope:                    accessgrants.AccessScope(d.Scope),
		TimeWindowHours:          d.TimeWindowHours,
		CreatedAt:                d.CreatedAt,
		UpdatedAt:                d.UpdatedAt,
		GrantedAt:                d.GrantedAt,
		ExpiresAt:                d.ExpiresAt,
		RevokedAt:                d.RevokedAt,
		Reason:                   d.Reason,
		RequestMetadata:          accessgrants.RequestMetadata(d.Metadata),
	}
}

type AccessGrantsRepo struct {
	col *mongo.Collection
}

func NewAccessGrantsRepo(db *mongo.Database) *AccessGrantsRepo {
	return &AccessGrantsRepo{col: db.Collection(colGrants)}
}

func (r *AccessGrantsRepo) Create(ctx context.Context, g accessgrants.Grant) error {
	_, err := r.col.InsertOne(ctx, toGrantDoc(g))
	return err
}

func (r *AccessGrantsRepo) UpdatePending(ctx context.Context, g accessgrants.Grant) error {
	d := toGrantDoc(g)
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": g.ID, "status": string(accessgrants.StatusPending)},
		bson.M{"$set": bson.M{
			"scope":           d.Scope,
			"timeWindowHours": d.TimeWindowHours,
			"updatedAt":       d.UpdatedAt,
			"expiresAt":       d.ExpiresAt,
			"requestMetadata": d.Metadata,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return accessgrants.ErrStateConflict
	}
	return nil
}

func (r *AccessGrantsRepo) GetByID(ctx context.Context, id string) (accessgrants.Grant, error) {
	var d grantDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if isNoDocuments(err) {
			return accessgrants.Grant{}, apperr.ErrNotFound
		}
		return accessgrants.Grant{}, err
	}
	return d.toDomain(), nil
}

func (r *AccessGrantsRepo) ListByPatient(ctx context.Context, patientID string) ([]accessgrants.Grant, error) {
	return r.find(ctx, bson.M{"patientId": patientID}, bson.D{{Key: "createdAt", Value: -1}})
}

func (r *AccessGrantsRepo) ListByPractitioner(ctx context.Context, practitionerID string) ([]accessgrants.Grant, error) {
	return r.find(ctx, bson.M{"requestingPractitionerId": practitionerID}, bson.D{{Key: "createdAt", Value: -1}})
}

func (r *AccessGrantsRepo) FindPending(ctx context.Context, patientID, organizationID, practitionerID string) ([]accessgrants.Grant, error) {
	return r.find(ctx, bson.M{
		"patientId":                patientID,
		"organizationId":           organizationID,
		"requestingPractitionerId": practitionerID,
		"status":                   string(accessgrants.StatusPending),
	}, bson.D{{Key: "updatedAt", Value: -1}})
}

func (r *AccessGrantsRepo) FindActive(ctx context.Context, patientID, organizationID string, now time.Time) ([]accessgrants.Grant, error) {
	return r.find(ctx, bson.M{
		"patientId":      patientID,
		"organizationId": organizationID,
		"status":         string(accessgrants.StatusActive),
		"expiresAt":      bson.M{"$gt": now},
	}, bson.D{{Key: "expiresAt", Value: -1}})
}

// Transition usa FindOneAndUpdate: el filtro de estado y la escritura son atómicos en el documento.
func (r *AccessGrantsRepo) Transition(ctx context.Context, t accessgrants.Transition) (accessgrants.Grant, error) {
	from := make([]string, 0, len(t.From))
	for _, s := range t.From {
		from = append(from, string(s))
	}
	filter := bson.M{
		"_id":       t.GrantID,
		"patientId": t.PatientID,
		"status":    bson.M{"$in": from},
		"$or": bson.A{
			bson.M{"status": bson.M{"$ne": string(accessgrants.StatusActive)}},
			bson.M{"expiresAt": bson.M{"$gt": t.At}},
		},
	}

	set := bson.M{"status": string(t.To), "updatedAt": t.At}
	if t.GrantedAt != nil {
		set["grantedAt"] = *t.GrantedAt
	}
	if t.ExpiresAt != nil {
		set["expiresAt"] = *t.ExpiresAt
	}
	if t.RevokedAt != nil {
		set["revokedAt"] = *t.RevokedAt
	}
	if t.Reason != "" {
		set["reason"] = t.Reason
	}

	var d grantDoc
	if err := r.col.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, afterUpdate()).Decode(&d); err != nil {
		if isNoDocuments(err) {
			return accessgrants.Grant{}, accessgrants.ErrStateConflict
		}
		return accessgrants.Grant{}, err
	}
	return d.toDomain(), nil
}

func (r *AccessGrantsRepo) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{"status": string(accessgrants.StatusActive), "expiresAt": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{"status": string(accessgrants.StatusExpired), "updatedAt": now}},
	)
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

func (r *AccessGrantsRepo) CountByStatus(ctx context.Context) (map[accessgrants.Status]int, error) {
	cur, err := r.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Status string `bson:"_id"`
		N      int    `bson:"n"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make(map[accessgrants.Status]int, len(rows))
	for _, row := range rows {
		out[accessgrants.Status(row.Status)] = row.N
	}
	return out, nil
}

func (r *AccessGrantsRepo) find(ctx context.Context, filter bson.M, sort bson.D) ([]accessgrants.Grant, error) {
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []grantDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]accessgrants.Grant, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}
