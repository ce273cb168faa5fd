package notification

import (
	"context"
	"time"

	"notification-dispatch/internal/models"
)

// Store persists notifications. Implementations return errs.ErrNotFound for
// unknown ids and errs.ErrVersionConflict when a transition's expected
// version no longer matches.
type Store interface {
	CreateNotification(ctx context.Context, n models.Notification) error
	GetNotification(ctx context.Context, id string) (models.Notification, error)
	ListNotifications(ctx context.Context, f models.NotificationFilter, p models.Page) ([]models.Notification, int, error)
	CountByStatus(ctx context.Context, from, to *time.Time) (map[models.Status]int, error)
	TransitionNotification(ctx context.Context, tr models.Transition) (models.Notification, error)
	DeleteNotification(ctx context.Context, id string) error
	DeleteNotifications(ctx context.Context, ids []string) (int, error)
	DueNotifications(ctx context.Context, now time.Time, limit int) ([]models.Notification, error)
}
