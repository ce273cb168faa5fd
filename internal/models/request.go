package models

import (
	"strings"
	"time"

	"notification-dispatch/internal/errs"
)

// Content is where the text of a SendRequest comes from: a stored template or
// raw subject/message.
type Content interface {
	isContent()
}

// TemplateContent renders the named template with the given values. Subject is
// used only when the template declares none.
type TemplateContent struct {
	Name      string
	Variables map[string]string
	Subject   string
}

// RawContent is sent verbatim.
type RawContent struct {
	Subject string
	Message string
}

func (TemplateContent) isContent() {}
func (RawContent) isContent()      {}

// SendRequest is a transient request to dispatch one logical notification.
type SendRequest struct {
	Channel     Channel
	Recipients  []string
	Content     Content
	Priority    Priority
	ScheduledAt *time.Time
	Attachments []Attachment
	Metadata    map[string]interface{}
}

// SendPayload is the JSON wire form of a SendRequest. Exactly one of
// TemplateName or Message must be set.
type SendPayload struct {
	Channel      Channel                `json:"channel"`
	Recipients   []string               `json:"recipients"`
	Recipient    string                 `json:"recipient,omitempty"`
	TemplateName string                 `json:"templateName,omitempty"`
	Variables    map[string]string      `json:"variables,omitempty"`
	Subject      string                 `json:"subject,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Priority     Priority               `json:"priority,omitempty" binding:"omitempty,priority"`
	ScheduledAt  *time.Time             `json:"scheduledAt,omitempty"`
	Attachments  []Attachment           `json:"attachments,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToRequest converts the wire form into a SendRequest.
func (p SendPayload) ToRequest() (SendRequest, error) {
	hasTemplate := strings.TrimSpace(p.TemplateName) != ""
	hasMessage := p.Message != ""
	if hasTemplate == hasMessage {
		return SendRequest{}, errs.Validation("exactly one of templateName or message must be provided")
	}
	recipients := append([]string(nil), p.Recipients...)
	if p.Recipient != "" {
		recipients = append(recipients, p.Recipient)
	}
	req := SendRequest{
		Channel:     p.Channel,
		Recipients:  recipients,
		Priority:    p.Priority,
		ScheduledAt: p.ScheduledAt,
		Attachments: p.Attachments,
		Metadata:    p.Metadata,
	}
	if hasTemplate {
		req.Content = TemplateContent{Name: strings.TrimSpace(p.TemplateName), Variables: p.Variables, Subject: p.Subject}
	} else {
		req.Content = RawContent{Subject: p.Subject, Message: p.Message}
	}
	return req, nil
}

// Rejection is a recipient dropped before transmission.
type Rejection struct {
	Recipient string `json:"recipient"`
	Reason    string `json:"reason"`
}

const ReasonInvalidFormat = "invalid_format"

// DispatchResult summarizes one send or retry.
type DispatchResult struct {
	NotificationID string      `json:"notificationId"`
	Status         Status      `json:"status"`
	Accepted       []string    `json:"accepted"`
	Rejected       []Rejection `json:"rejected"`
	Deliveries     []Delivery  `json:"deliveries,omitempty"`
}

// NotificationFilter narrows a history query. Filters are AND-combined and zero
// values match everything.
type NotificationFilter struct {
	Type     Channel
	Status   Status
	Priority Priority
	From     *time.Time
	To       *time.Time
	Search   string
}

// Match applies the filter in memory. Search is a case-insensitive substring
// match against recipients, subject and message.
func (f NotificationFilter) Match(n Notification) bool {
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Status != "" && n.Status != f.Status {
		return false
	}
	if f.Priority != "" && n.Priority != f.Priority {
		return false
	}
	if f.From != nil && n.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && n.CreatedAt.After(*f.To) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		hay := strings.ToLower(strings.Join(n.Recipients, " ") + "\n" + n.Subject + "\n" + n.Message)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page selects a window of a query result. Page numbers start at 1.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps the page into its valid range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// QueryResult is one page of notifications.
type QueryResult struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total"`
	TotalPages    int            `json:"totalPages"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
}

// TotalPages returns the number of pages needed for total items.
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// Stats counts notifications by status. Pending includes sending.
type Stats struct {
	Total     int `json:"total"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Scheduled int `json:"scheduled"`
	Cancelled int `json:"cancelled"`
}

// Add counts one notification with the given status.
func (s *Stats) Add(status Status, n int) {
	s.Total += n
	switch status {
	case StatusSent:
		s.Sent += n
	case StatusDelivered:
		s.Delivered += n
	case StatusFailed:
		s.Failed += n
	case StatusPending, StatusSending:
		s.Pending += n
	case StatusScheduled:
		s.Scheduled += n
	case StatusCancelled:
		s.Cancelled += n
	}
}

// EventType names a lifecycle event published by the dispatcher.
type EventType string

const (
	EventCreated   EventType = "notification.created"
	EventScheduled EventType = "notification.scheduled"
	EventSending   EventType = "notification.sending"
	EventCompleted EventType = "notification.completed"
	EventFailed    EventType = "notification.failed"
	EventCancelled EventType = "notification.cancelled"
	EventRetried   EventType = "notification.retried"
)

// Event is a status change observed on a Notification.
type Event struct {
	Type           EventType  `json:"type"`
	NotificationID string     `json:"notificationId"`
	Channel        Channel    `json:"channel"`
	Status         Status     `json:"status"`
	Recipients     int        `json:"recipients"`
	Deliveries     []Delivery `json:"deliveries,omitempty"`
	Error          string     `json:"error,omitempty"`
	// Duration is how long the adapter took to transmit, set on completion events.
	Duration time.Duration `json:"durationNs,omitempty"`
	At       time.Time     `json:"at"`
}
