package notification

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"notification-dispatch/internal/errs"
	"notification-dispatch/internal/export"
	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/models"
)

const bulkConcurrency = 8

// BulkResult is the outcome of one id in a bulk retry.
type BulkResult struct {
	ID     string                 `json:"id"`
	Result *models.DispatchResult `json:"result,omitempty"`
	Kind   errs.Kind              `json:"error,omitempty"`
	Error  string                 `json:"message,omitempty"`
}

// Tracker owns notification history: lookup, query, stats, retry, cancel,
// deletion and export.
type Tracker struct {
	store      Store
	dispatcher *Dispatcher
	logger     *logging.Logger
}

func NewTracker(store Store, dispatcher *Dispatcher, logger *logging.Logger) *Tracker {
	return &Tracker{store: store, dispatcher: dispatcher, logger: logger}
}

// Record stores a notification as given and returns its id, generating one
// when empty.
func (t *Tracker) Record(ctx context.Context, n models.Notification) (string, error) {
	if !n.Status.Valid() {
		return "", errs.Validation("unknown status %q", n.Status)
	}
	if n.Status == models.StatusFailed && n.Error == "" {
		return "", errs.Validation("failed notifications need an error")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	} else if _, err := uuid.Parse(n.ID); err != nil {
		return "", errs.Validation("notification id %q is not a uuid", n.ID)
	}
	if n.Version == 0 {
		n.Version = 1
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}
	if err := t.store.CreateNotification(ctx, n); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return "", errs.Wrap(errs.KindValidation, err, "notification %s already exists", n.ID)
		}
		return "", errs.Wrap(errs.KindInternal, err, "failed to record notification")
	}
	return n.ID, nil
}

func (t *Tracker) Get(ctx context.Context, id string) (models.Notification, error) {
	return t.dispatcher.get(ctx, id)
}

// Query returns one page of matching notifications, newest first.
func (t *Tracker) Query(ctx context.Context, f models.NotificationFilter, p models.Page) (models.QueryResult, error) {
	p = p.Normalize()
	items, total, err := t.store.ListNotifications(ctx, f, p)
	if err != nil {
		t.logger.Errorf("Failed to query notifications: %v", err)
		return models.QueryResult{}, errs.Wrap(errs.KindInternal, err, "failed to query notifications")
	}
	return models.QueryResult{
		Notifications: items,
		Total:         total,
		TotalPages:    models.TotalPages(total, p.Limit),
		Page:          p.Page,
		Limit:         p.Limit,
	}, nil
}

// Stats counts notifications created within the optional [from, to] window.
func (t *Tracker) Stats(ctx context.Context, from, to *time.Time) (models.Stats, error) {
	counts, err := t.store.CountByStatus(ctx, from, to)
	if err != nil {
		t.logger.Errorf("Failed to compute stats: %v", err)
		return models.Stats{}, errs.Wrap(errs.KindInternal, err, "failed to compute stats")
	}
	var s models.Stats
	for status, n := range counts {
		s.Add(status, n)
	}
	return s, nil
}

// Retry re-sends a failed notification.
func (t *Tracker) Retry(ctx context.Context, id string) (models.DispatchResult, error) {
	return t.dispatcher.Retry(ctx, id)
}

// RetryBulk retries every id independently and concurrently. Results are in
// input order.
func (t *Tracker) RetryBulk(ctx context.Context, ids []string) []BulkResult {
	results := make([]BulkResult, len(ids))
	var g errgroup.Group
	g.SetLimit(bulkConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			results[i].ID = id
			res, err := t.dispatcher.Retry(ctx, id)
			if err != nil && res.NotificationID == "" {
				results[i].Kind = errs.KindOf(err)
				results[i].Error = errs.MessageOf(err)
				return nil
			}
			results[i].Result = &res
			if err != nil {
				results[i].Kind = errs.KindOf(err)
				results[i].Error = errs.MessageOf(err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (t *Tracker) Cancel(ctx context.Context, id string) (models.Notification, error) {
	return t.dispatcher.Cancel(ctx, id)
}

func (t *Tracker) Delete(ctx context.Context, id string) error {
	if err := t.store.DeleteNotification(ctx, id); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.NotFound("notification %s not found", id)
		}
		return errs.Wrap(errs.KindInternal, err, "failed to delete notification")
	}
	t.logger.Infof("Deleted notification %s", id)
	return nil
}

// DeleteBulk hard-deletes the given ids, skipping unknown ones, and returns
// how many were removed.
func (t *Tracker) DeleteBulk(ctx context.Context, ids []string) (int, error) {
	n, err := t.store.DeleteNotifications(ctx, ids)
	if err != nil {
		return 0, errs.Wrap(errs.KindInternal, err, "failed to delete notifications")
	}
	t.logger.Infof("Bulk deleted %d of %d notifications", n, len(ids))
	return n, nil
}

// Export writes every notification matching f to w. Only "csv" is supported.
func (t *Tracker) Export(ctx context.Context, f models.NotificationFilter, w io.Writer, format string) error {
	if format = strings.ToLower(strings.TrimSpace(format)); format == "" {
		format = "csv"
	}
	if format != "csv" {
		return errs.Validation("unsupported export format %q", format)
	}
	all, err := t.All(ctx, f)
	if err != nil {
		return err
	}
	if err := export.WriteCSV(w, all); err != nil {
		return errs.Wrap(errs.KindInternal, err, "failed to write export")
	}
	return nil
}

// All returns every notification matching f, newest first.
func (t *Tracker) All(ctx context.Context, f models.NotificationFilter) ([]models.Notification, error) {
	var all []models.Notification
	for page := 1; ; page++ {
		res, err := t.Query(ctx, f, models.Page{Page: page, Limit: models.MaxPageLimit})
		if err != nil {
			return nil, err
		}
		all = append(all, res.Notifications...)
		if len(res.Notifications) == 0 || len(all) >= res.Total {
			return all, nil
		}
	}
}
