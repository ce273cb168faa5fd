package models

// Channel is a notification transport category.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelWeb      Channel = "web"
	ChannelSMS      Channel = "sms"
)

// Channels lists every supported channel.
var Channels = []Channel{ChannelEmail, ChannelWhatsApp, ChannelWeb, ChannelSMS}

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelWhatsApp, ChannelWeb, ChannelSMS:
		return true
	}
	return false
}

// SupportsSubject reports whether messages on the channel carry a subject line.
func (c Channel) SupportsSubject() bool {
	return c == ChannelEmail || c == ChannelWeb
}

// IsPhone reports whether recipients on the channel are phone numbers.
func (c Channel) IsPhone() bool {
	return c == ChannelWhatsApp || c == ChannelSMS
}

// Category groups templates for operators.
type Category string

const (
	CategoryGeneral   Category = "general"
	CategoryOrder     Category = "order"
	CategoryTask      Category = "task"
	CategoryUser      Category = "user"
	CategorySystem    Category = "system"
	CategoryMarketing Category = "marketing"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryGeneral, CategoryOrder, CategoryTask, CategoryUser, CategorySystem, CategoryMarketing:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Status is the delivery state of a Notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusSending, StatusSent, StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed without an explicit retry.
func (s Status) Terminal() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusScheduled, StatusSending, StatusCancelled},
	StatusScheduled: {StatusSending, StatusCancelled},
	StatusSending:   {StatusSent, StatusDelivered, StatusFailed},
	StatusFailed:    {StatusSending},
}

// CanTransition reports whether a Notification may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Outcome is the per-recipient result reported by a channel adapter.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
)

func (o Outcome) Succeeded() bool {
	return o == OutcomeSent || o == OutcomeDelivered
}
