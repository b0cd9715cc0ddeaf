package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"patient-access/internal/domain/notifications"
	"patient-access/internal/platform/apperr"
)

type notificationRepo struct {
	mu   sync.RWMutex
	byID map[string]notifications.Notification
}

func NewNotificationRepo() notifications.Repository {
	return &notificationRepo{
		byID: make(map[string]notifications.Notification),
	}
}

func (r *notificationRepo) Create(ctx context.Context, n notifications.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[n.ID] = n
	return nil
}

func (r *notificationRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]notifications.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]notifications.Notification, 0)
	for _, n := range r.byID {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.ReadAt != nil {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, id, userID string, at time.Time) (notifications.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.byID[id]
	if !ok || n.UserID != userID {
		return notifications.Notification{}, apperr.ErrNotFound
	}
	if n.ReadAt == nil {
		n.ReadAt = &at
		r.byID[id] = n
	}
	return n, nil
}
