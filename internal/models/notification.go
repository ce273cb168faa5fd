package models

import (
	"encoding/json"
	"time"
)

// Attachment is an email attachment. Content is base64 encoded.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Content     string `json:"content,omitempty"`
}

// Delivery is the outcome of one recipient within a Notification.
type Delivery struct {
	Recipient  string    `json:"recipient"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	ProviderID string    `json:"providerId,omitempty"`
	At         time.Time `json:"at"`
}

// Notification is one persisted logical send, possibly to several recipients.
type Notification struct {
	ID           string                 `json:"id"`
	Type         Channel                `json:"type"`
	Recipients   []string               `json:"recipients"`
	Subject      string                 `json:"subject,omitempty"`
	Message      string                 `json:"message"`
	Priority     Priority               `json:"priority"`
	Status       Status                 `json:"status"`
	TemplateName string                 `json:"templateName,omitempty"`
	ScheduledAt  *time.Time             `json:"scheduledAt,omitempty"`
	SentAt       *time.Time             `json:"sentAt,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Attachments  []Attachment           `json:"attachments,omitempty"`
	Deliveries   []Delivery             `json:"-"` // exposed under metadata.deliveries
	Error        string                 `json:"error,omitempty"`
	RetryCount   int                    `json:"retryCount"`
	Version      int                    `json:"version"`
}

// MarshalJSON exposes the first recipient as "recipient", nests the delivery
// breakdown under metadata and strips attachment bodies.
func (n Notification) MarshalJSON() ([]byte, error) {
	type Alias Notification
	var recipient string
	if len(n.Recipients) > 0 {
		recipient = n.Recipients[0]
	}
	meta := n.Metadata
	if len(n.Deliveries) > 0 {
		meta = make(map[string]interface{}, len(n.Metadata)+1)
		for k, v := range n.Metadata {
			meta[k] = v
		}
		meta["deliveries"] = n.Deliveries
	}
	var attachments []Attachment
	for _, a := range n.Attachments {
		attachments = append(attachments, Attachment{Filename: a.Filename, ContentType: a.ContentType})
	}
	return json.Marshal(&struct {
		Recipient   string                 `json:"recipient"`
		Metadata    map[string]interface{} `json:"metadata,omitempty"`
		Attachments []Attachment           `json:"attachments,omitempty"`
		*Alias
	}{
		Recipient:   recipient,
		Metadata:    meta,
		Attachments: attachments,
		Alias:       (*Alias)(&n),
	})
}

// Clone returns a deep copy of n.
func (n Notification) Clone() Notification {
	c := n
	c.Recipients = append([]string(nil), n.Recipients...)
	c.Attachments = append([]Attachment(nil), n.Attachments...)
	c.Deliveries = append([]Delivery(nil), n.Deliveries...)
	if n.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	if n.ScheduledAt != nil {
		t := *n.ScheduledAt
		c.ScheduledAt = &t
	}
	if n.SentAt != nil {
		t := *n.SentAt
		c.SentAt = &t
	}
	return c
}

// PendingRecipients returns the recipients that have not yet succeeded. Without
// a delivery breakdown every recipient is pending.
func (n Notification) PendingRecipients() []string {
	if len(n.Deliveries) == 0 {
		return append([]string(nil), n.Recipients...)
	}
	ok := make(map[string]bool, len(n.Deliveries))
	for _, d := range n.Deliveries {
		if d.Outcome.Succeeded() {
			ok[d.Recipient] = true
		}
	}
	var out []string
	for _, r := range n.Recipients {
		if !ok[r] {
			out = append(out, r)
		}
	}
	return out
}

// Transition describes a status change applied by a store with an optimistic
// version check.
type Transition struct {
	ID              string
	ExpectedVersion int
	Status          Status
	Error           string
	Deliveries      []Delivery
	SentAt          *time.Time
	IncrementRetry  bool
	At              time.Time
}
