// Package memstore keeps notifications and templates in process memory. It is
// used with STORAGE=memory and in tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"notification-dispatch/internal/errs"
	"notification-dispatch/internal/models"
)

type Store struct {
	mu            sync.RWMutex
	notifications map[string]models.Notification
	templates     map[string]models.Template
}

func New() *Store {
	return &Store{
		notifications: make(map[string]models.Notification),
		templates:     make(map[string]models.Template),
	}
}

func (s *Store) CreateNotification(ctx context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[n.ID]; ok {
		return errs.ErrAlreadyExists
	}
	s.notifications[n.ID] = n.Clone()
	return nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return models.Notification{}, errs.ErrNotFound
	}
	return n.Clone(), nil
}

// ListNotifications returns one page of matching notifications, newest first,
// and the total number of matches.
func (s *Store) ListNotifications(ctx context.Context, f models.NotificationFilter, p models.Page) ([]models.Notification, int, error) {
	s.mu.RLock()
	matched := make([]models.Notification, 0)
	for _, n := range s.notifications {
		if f.Match(n) {
			matched = append(matched, n.Clone())
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)
	total := len(matched)
	p = p.Normalize()
	start := p.Offset()
	if start >= total {
		return []models.Notification{}, total, nil
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// CountByStatus counts notifications created within [from, to].
func (s *Store) CountByStatus(ctx context.Context, from, to *time.Time) (map[models.Status]int, error) {
	f := models.NotificationFilter{From: from, To: to}
	out := make(map[models.Status]int)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.notifications {
		if f.Match(n) {
			out[n.Status]++
		}
	}
	return out, nil
}

// TransitionNotification applies tr if the stored version still equals
// tr.ExpectedVersion.
func (s *Store) TransitionNotification(ctx context.Context, tr models.Transition) (models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[tr.ID]
	if !ok {
		return models.Notification{}, errs.ErrNotFound
	}
	if n.Version != tr.ExpectedVersion {
		return models.Notification{}, errs.ErrVersionConflict
	}
	n.Status = tr.Status
	n.Error = tr.Error
	if tr.Deliveries != nil {
		n.Deliveries = append([]models.Delivery(nil), tr.Deliveries...)
	}
	if tr.SentAt != nil {
		t := *tr.SentAt
		n.SentAt = &t
	}
	if tr.IncrementRetry {
		n.RetryCount++
	}
	n.UpdatedAt = tr.At
	n.Version++
	s.notifications[n.ID] = n
	return n.Clone(), nil
}

func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.notifications, id)
	return nil
}

// DeleteNotifications removes the given ids and reports how many existed.
func (s *Store) DeleteNotifications(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := s.notifications[id]; ok {
			delete(s.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

// DueNotifications lists scheduled notifications due at or before now, oldest
// schedule first.
func (s *Store) DueNotifications(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	s.mu.RLock()
	due := make([]models.Notification, 0)
	for _, n := range s.notifications {
		if n.Status == models.StatusScheduled && n.ScheduledAt != nil && !n.ScheduledAt.After(now) {
			due = append(due, n.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(*due[j].ScheduledAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) CreateTemplate(ctx context.Context, t models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.Name]; ok {
		return errs.ErrAlreadyExists
	}
	s.templates[t.Name] = t.Clone()
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, name string) (models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[name]
	if !ok {
		return models.Template{}, errs.ErrNotFound
	}
	return t.Clone(), nil
}

// ListTemplates returns matching templates ordered by name.
func (s *Store) ListTemplates(ctx context.Context, f models.TemplateFilter) ([]models.Template, error) {
	s.mu.RLock()
	out := make([]models.Template, 0, len(s.templates))
	for _, t := range s.templates {
		if f.Match(t) {
			out = append(out, t.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateTemplate(ctx context.Context, t models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.Name]; !ok {
		return errs.ErrNotFound
	}
	s.templates[t.Name] = t.Clone()
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[name]; !ok {
		return errs.ErrNotFound
	}
	delete(s.templates, name)
	return nil
}

func sortNewestFirst(ns []models.Notification) {
	sort.SliceStable(ns, func(i, j int) bool {
		if ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].ID > ns[j].ID
		}
		return ns[i].CreatedAt.After(ns[j].CreatedAt)
	})
}
