package mongodb

import (
	"context"
	"time"

	"patient-access/internal/domain/notifications"
	"patient-access/internal/platform/apperr"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type notificationDoc struct {
	ID             string     `bson:"_id"`
	UserID         string     `bson:"userId"`
	Type           string     `bson:"type"`
	Title          string     `bson:"title"`
	Message        string     `bson:"message"`
	GrantID        string     `bson:"grantId,omitempty"`
	PatientID      string     `bson:"patientId,omitempty"`
	OrganizationID string     `bson:"organizationId,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt"`
	ReadAt         *time.Time `bson:"readAt,omitempty"`
}

func (d notificationDoc) toDomain() notifications.Notification {
	return notifications.Notification{
		ID:             d.ID,
		UserID:         d.UserID,
		Type:           notifications.Type(d.Type),
		Title:          d.Title,
		Message:        d.Message,
		GrantID:        d.GrantID,
		PatientID:      d.PatientID,
		OrganizationID: d.OrganizationID,
		CreatedAt:      d.CreatedAt,
		ReadAt:         d.ReadAt,
	}
}

type NotificationsRepo struct {
	col *mongo.Collection
}

func NewNotificationsRepo(db *mongo.Database) *NotificationsRepo {
	return &NotificationsRepo{col: db.Collection(colNotifications)}
}

func (r *NotificationsRepo) Create(ctx context.Context, n notifications.Notification) error {
	_, err := r.col.InsertOne(ctx, notificationDoc{
		ID:             n.ID,
		UserID:         n.UserID,
		Type:           string(n.Type),
		Title:          n.Title,
		Message:        n.Message,
		GrantID:        n.GrantID,
		PatientID:      n.PatientID,
		OrganizationID: n.OrganizationID,
		CreatedAt:      n.CreatedAt,
		ReadAt:         n.ReadAt,
	})
	return err
}

func (r *NotificationsRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]notifications.Notification, error) {
	q := bson.M{"userId": userID}
	if unreadOnly {
		q["readAt"] = bson.M{"$exists": false}
	}
	cur, err := r.col.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []notificationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]notifications.Notification, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (r *NotificationsRepo) MarkRead(ctx context.Context, id, userID string, at time.Time) (notifications.Notification, error) {
	// Primero intenta marcar solo si no estaba leída; si ya lo estaba, devuelve tal cual.
	var d notificationDoc
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "userId": userID, "readAt": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"readAt": at}},
		afterUpdate(),
	).Decode(&d)
	if err == nil {
		return d.toDomain(), nil
	}
	if !isNoDocuments(err) {
		return notifications.Notification{}, err
	}

	if err := r.col.FindOne(ctx, bson.M{"_id": id, "userId": userID}).Decode(&d); err != nil {
		if isNoDocuments(err) {
			return notifications.Notification{}, apperr.ErrNotFound
		}
		return notifications.Notification{}, err
	}
	return d.toDomain(), nil
}
