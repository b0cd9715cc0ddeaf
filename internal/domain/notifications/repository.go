package notifications

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, n Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error)
	// MarkRead: NotFound si no existe o no es del usuario. Idempotente.
	MarkRead(ctx context.Context, id, userID string, at time.Time) (Notification, error)
}

// Publisher es el relay externo (RabbitMQ). Opcional.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
