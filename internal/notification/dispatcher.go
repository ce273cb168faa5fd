// Package notification validates, renders, routes and tracks notifications.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"notification-dispatch/internal/config"
	"notification-dispatch/internal/errs"
	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/providers"
	"notification-dispatch/internal/recipient"
	"notification-dispatch/internal/render"
)

const (
	MaxEmailSubject = 200
	MaxEmailMessage = 10000

	defaultTransmitTimeout = 30 * time.Second
)

// TemplateResolver looks up an active template for a channel.
type TemplateResolver interface {
	Resolve(ctx context.Context, name string, ch models.Channel) (models.Template, error)
}

// Dispatcher turns SendRequests into recorded, transmitted notifications.
type Dispatcher struct {
	store     Store
	templates TemplateResolver
	adapters  providers.Registry
	validator *recipient.Validator
	logger    *logging.Logger
	timeout   time.Duration
	events    EventSink
	now       func() time.Time
}

func NewDispatcher(store Store, templates TemplateResolver, adapters providers.Registry, validator *recipient.Validator, logger *logging.Logger, cfg config.Config) *Dispatcher {
	timeout := cfg.Notification.TransmitTimeout
	if timeout <= 0 {
		timeout = defaultTransmitTimeout
	}
	return &Dispatcher{
		store:     store,
		templates: templates,
		adapters:  providers.ForEnvironment(adapters, cfg.App.DryRun),
		validator: validator,
		logger:    logger,
		timeout:   timeout,
		now:       time.Now,
	}
}

// SetEventSink attaches an observer for lifecycle events.
func (d *Dispatcher) SetEventSink(sink EventSink) {
	d.events = sink
}

// SetClock replaces the time source.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Logger exposes the dispatcher's logger to the queue and consumers.
func (d *Dispatcher) Logger() *logging.Logger {
	return d.logger
}

// Send validates req, records a Notification and, unless it is scheduled,
// transmits it through the channel adapter.
func (d *Dispatcher) Send(ctx context.Context, req models.SendRequest) (models.DispatchResult, error) {
	if !req.Channel.Valid() {
		return models.DispatchResult{}, errs.Validation("unknown channel %q", req.Channel)
	}
	if len(req.Recipients) == 0 {
		return models.DispatchResult{}, errs.Validation("at least one recipient is required")
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if !req.Priority.Valid() {
		return models.DispatchResult{}, errs.Validation("unknown priority %q", req.Priority)
	}
	if len(req.Attachments) > 0 && req.Channel != models.ChannelEmail {
		return models.DispatchResult{}, errs.Validation("attachments are only supported on email")
	}

	accepted, rejected := d.validator.Partition(req.Channel, req.Recipients)
	result := models.DispatchResult{Accepted: accepted, Rejected: rejected}
	if len(accepted) == 0 {
		return result, errs.New(errs.KindNoValidRecipients, "none of the %d recipients is valid for %s", len(req.Recipients), req.Channel)
	}

	subject, message, templateName, err := d.resolveContent(ctx, req)
	if err != nil {
		return result, err
	}
	if err := checkSize(req.Channel, subject, message); err != nil {
		return result, err
	}

	now := d.now().UTC()
	if req.ScheduledAt != nil && !req.ScheduledAt.After(now) {
		return result, errs.Validation("scheduledAt must be in the future")
	}

	n := models.Notification{
		ID:           uuid.NewString(),
		Type:         req.Channel,
		Recipients:   accepted,
		Subject:      subject,
		Message:      message,
		Priority:     req.Priority,
		Status:       models.StatusPending,
		TemplateName: templateName,
		CreatedAt:    now,
		UpdatedAt:    now,
		Metadata:     req.Metadata,
		Attachments:  req.Attachments,
		Version:      1,
	}
	if req.ScheduledAt != nil {
		at := req.ScheduledAt.UTC()
		n.ScheduledAt = &at
		n.Status = models.StatusScheduled
	}

	// Persisting and delivering must not be cut short by the caller going away.
	ctx = context.WithoutCancel(ctx)
	if err := d.store.CreateNotification(ctx, n); err != nil {
		d.logger.Errorf("Failed to record notification %s: %v", n.ID, err)
		return result, errs.Wrap(errs.KindInternal, err, "failed to record notification")
	}
	result.NotificationID = n.ID
	result.Status = n.Status

	if n.Status == models.StatusScheduled {
		d.logger.Infof("Scheduled notification %s (%s) for %s to %s", n.ID, n.Type, n.ScheduledAt.Format(time.RFC3339), d.logger.Contacts(accepted))
		d.publish(ctx, event(models.EventScheduled, n, now))
		return result, nil
	}
	d.publish(ctx, event(models.EventCreated, n, now))

	sending, err := d.transition(ctx, n, models.StatusSending, false)
	if err != nil {
		return result, err
	}
	d.publish(ctx, event(models.EventSending, sending, d.now().UTC()))
	return d.deliver(ctx, sending, sending.Recipients, nil, rejected)
}

// Retry re-sends a failed notification to the recipients that have not yet
// succeeded.
func (d *Dispatcher) Retry(ctx context.Context, id string) (models.DispatchResult, error) {
	n, err := d.get(ctx, id)
	if err != nil {
		return models.DispatchResult{}, err
	}
	if n.Status != models.StatusFailed {
		return models.DispatchResult{}, errs.InvalidState("notification %s is %s; only failed notifications can be retried", id, n.Status)
	}
	pending := n.PendingRecipients()
	if len(pending) == 0 {
		pending = n.Recipients
	}

	ctx = context.WithoutCancel(ctx)
	sending, err := d.transition(ctx, n, models.StatusSending, true)
	if err != nil {
		return models.DispatchResult{}, err
	}
	d.logger.Infof("Retrying notification %s (attempt %d) for %d recipients", id, sending.RetryCount, len(pending))
	d.publish(ctx, event(models.EventRetried, sending, d.now().UTC()))
	return d.deliver(ctx, sending, pending, n.Deliveries, nil)
}

// SendScheduled delivers a due scheduled notification. It returns
// errs.ErrVersionConflict when another process claimed it first.
func (d *Dispatcher) SendScheduled(ctx context.Context, n models.Notification) (models.DispatchResult, error) {
	if n.Status != models.StatusScheduled {
		return models.DispatchResult{}, errs.InvalidState("notification %s is %s, not scheduled", n.ID, n.Status)
	}
	ctx = context.WithoutCancel(ctx)
	sending, err := d.store.TransitionNotification(ctx, models.Transition{
		ID:              n.ID,
		ExpectedVersion: n.Version,
		Status:          models.StatusSending,
		At:              d.now().UTC(),
	})
	if err != nil {
		return models.DispatchResult{}, fmt.Errorf("%w %s: %w", errNotClaimed, n.ID, err)
	}
	d.publish(ctx, event(models.EventSending, sending, d.now().UTC()))
	return d.deliver(ctx, sending, sending.Recipients, nil, nil)
}

// Cancel stops a pending or scheduled notification.
func (d *Dispatcher) Cancel(ctx context.Context, id string) (models.Notification, error) {
	n, err := d.get(ctx, id)
	if err != nil {
		return models.Notification{}, err
	}
	if !models.CanTransition(n.Status, models.StatusCancelled) {
		return models.Notification{}, errs.InvalidState("notification %s is %s and can no longer be cancelled", id, n.Status)
	}
	cancelled, err := d.transition(ctx, n, models.StatusCancelled, false)
	if err != nil {
		return models.Notification{}, err
	}
	d.logger.Infof("Cancelled notification %s", id)
	d.publish(ctx, event(models.EventCancelled, cancelled, d.now().UTC()))
	return cancelled, nil
}

func (d *Dispatcher) get(ctx context.Context, id string) (models.Notification, error) {
	n, err := d.store.GetNotification(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return models.Notification{}, errs.NotFound("notification %s not found", id)
		}
		return models.Notification{}, errs.Wrap(errs.KindInternal, err, "failed to load notification")
	}
	return n, nil
}

// transition moves n to status with an optimistic version check.
func (d *Dispatcher) transition(ctx context.Context, n models.Notification, status models.Status, retry bool) (models.Notification, error) {
	if !models.CanTransition(n.Status, status) {
		return models.Notification{}, errs.InvalidState("cannot move notification %s from %s to %s", n.ID, n.Status, status)
	}
	out, err := d.store.TransitionNotification(ctx, models.Transition{
		ID:              n.ID,
		ExpectedVersion: n.Version,
		Status:          status,
		IncrementRetry:  retry,
		At:              d.now().UTC(),
	})
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, errs.ErrVersionConflict):
		return models.Notification{}, errs.Wrap(errs.KindInvalidState, err, "notification %s was modified concurrently", n.ID)
	case errors.Is(err, errs.ErrNotFound):
		return models.Notification{}, errs.NotFound("notification %s not found", n.ID)
	}
	d.logger.Errorf("Failed to move notification %s to %s: %v", n.ID, status, err)
	return models.Notification{}, errs.Wrap(errs.KindInternal, err, "failed to update notification")
}

// deliver transmits n to targets, merges the outcomes with earlier deliveries
// and records the final status.
func (d *Dispatcher) deliver(ctx context.Context, n models.Notification, targets []string, previous []models.Delivery, rejected []models.Rejection) (models.DispatchResult, error) {
	adapter := d.adapters.Get(n.Type)

	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	start := time.Now()
	outcomes := adapter.Transmit(tctx, providers.Message{
		NotificationID: n.ID,
		Channel:        n.Type,
		Recipients:     targets,
		Subject:        n.Subject,
		Body:           n.Message,
		Attachments:    n.Attachments,
	})
	elapsed := time.Since(start)
	cancel()

	now := d.now().UTC()
	deliveries := mergeDeliveries(n.Recipients, targets, outcomes, previous, now)
	status, summary := aggregate(deliveries)

	tr := models.Transition{
		ID:              n.ID,
		ExpectedVersion: n.Version,
		Status:          status,
		Error:           summary,
		Deliveries:      deliveries,
		At:              now,
	}
	if status != models.StatusFailed || countSucceeded(deliveries) > 0 {
		tr.SentAt = &now
	}

	rejectedOut := rejected
	if rejectedOut == nil {
		rejectedOut = []models.Rejection{}
	}
	result := models.DispatchResult{
		NotificationID: n.ID,
		Status:         status,
		Accepted:       n.Recipients,
		Rejected:       rejectedOut,
		Deliveries:     deliveries,
	}

	final, err := d.store.TransitionNotification(ctx, tr)
	if err != nil {
		d.logger.Errorf("Failed to record outcome of notification %s: %v", n.ID, err)
		return result, errs.Wrap(errs.KindInternal, err, "failed to record delivery outcome")
	}

	ev := event(models.EventCompleted, final, now)
	if status == models.StatusFailed {
		ev.Type = models.EventFailed
		d.logger.Warnf("Notification %s via %s failed: %s", n.ID, n.Type, summary)
	} else {
		d.logger.Infof("Notification %s via %s %s to %s", n.ID, n.Type, status, d.logger.Contacts(targets))
	}
	ev.Deliveries = deliveries
	ev.Duration = elapsed
	d.publish(ctx, ev)

	if status == models.StatusFailed && countSucceeded(deliveries) == 0 {
		return result, errs.New(errs.KindTransportFailure, "%s", summary)
	}
	return result, nil
}

func (d *Dispatcher) resolveContent(ctx context.Context, req models.SendRequest) (subject, message, templateName string, err error) {
	switch c := req.Content.(type) {
	case models.TemplateContent:
		t, err := d.templates.Resolve(ctx, c.Name, req.Channel)
		if err != nil {
			return "", "", "", err
		}
		subject, message = render.Template(t, c.Variables)
		if subject == "" {
			subject = c.Subject
		}
		return subject, message, t.Name, nil
	case models.RawContent:
		return c.Subject, c.Message, "", nil
	}
	return "", "", "", errs.Validation("exactly one of templateName or message must be provided")
}

func checkSize(ch models.Channel, subject, message string) error {
	if strings.TrimSpace(message) == "" {
		return errs.Validation("message is required")
	}
	if ch != models.ChannelEmail {
		return nil
	}
	if strings.TrimSpace(subject) == "" {
		return errs.Validation("email subject is required")
	}
	if utf8.RuneCountInString(subject) > MaxEmailSubject {
		return errs.Validation("email subject exceeds %d characters", MaxEmailSubject)
	}
	if utf8.RuneCountInString(message) > MaxEmailMessage {
		return errs.Validation("email message exceeds %d characters", MaxEmailMessage)
	}
	return nil
}

// mergeDeliveries builds one Delivery per recipient of the notification:
// recipients in targets take their new outcome, the others keep their
// previous delivery.
func mergeDeliveries(recipients, targets []string, outcomes []providers.Outcome, previous []models.Delivery, at time.Time) []models.Delivery {
	fresh := make(map[string]models.Delivery, len(targets))
	for i, r := range targets {
		d := models.Delivery{Recipient: r, Outcome: models.OutcomeFailed, Error: "no outcome reported", At: at}
		if i < len(outcomes) {
			o := outcomes[i]
			d.Outcome, d.Error, d.ProviderID = o.Status, o.Error, o.ProviderID
			if d.Outcome == models.OutcomeFailed && d.Error == "" {
				d.Error = "delivery failed"
			}
		}
		fresh[r] = d
	}
	old := make(map[string]models.Delivery, len(previous))
	for _, p := range previous {
		old[p.Recipient] = p
	}

	out := make([]models.Delivery, 0, len(recipients))
	for _, r := range recipients {
		if d, ok := fresh[r]; ok {
			out = append(out, d)
			continue
		}
		if d, ok := old[r]; ok {
			out = append(out, d)
			continue
		}
		out = append(out, models.Delivery{Recipient: r, Outcome: models.OutcomeFailed, Error: "not attempted", At: at})
	}
	return out
}

// aggregate derives the notification status and error summary.
func aggregate(deliveries []models.Delivery) (models.Status, string) {
	total := len(deliveries)
	failed := total - countSucceeded(deliveries)
	switch {
	case failed == 0:
		for _, d := range deliveries {
			if d.Outcome != models.OutcomeDelivered {
				return models.StatusSent, ""
			}
		}
		return models.StatusDelivered, ""
	case failed == total:
		return models.StatusFailed, fmt.Sprintf("delivery failed for %d of %d recipients", failed, total)
	}
	return models.StatusFailed, fmt.Sprintf("partial delivery: %d of %d recipients failed", failed, total)
}

func countSucceeded(deliveries []models.Delivery) int {
	n := 0
	for _, d := range deliveries {
		if d.Outcome.Succeeded() {
			n++
		}
	}
	return n
}

func (d *Dispatcher) publish(ctx context.Context, ev models.Event) {
	if d.events == nil {
		return
	}
	if err := d.events.Publish(ctx, ev); err != nil {
		d.logger.Warnf("Failed to publish %s for %s: %v", ev.Type, ev.NotificationID, err)
	}
}

func event(t models.EventType, n models.Notification, at time.Time) models.Event {
	return models.Event{
		Type:           t,
		NotificationID: n.ID,
		Channel:        n.Type,
		Status:         n.Status,
		Recipients:     len(n.Recipients),
		Error:          n.Error,
		At:             at,
	}
}
