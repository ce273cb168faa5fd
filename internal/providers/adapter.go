// Package providers adapts external transports to the per-recipient Adapter
// contract used by the dispatcher.
package providers

import (
	"context"

	"notification-dispatch/internal/models"
)

// Message is the rendered content handed to an adapter.
type Message struct {
	NotificationID string
	Channel        models.Channel
	Recipients     []string
	Subject        string
	Body           string
	Attachments    []models.Attachment
}

// Outcome is the result for a single recipient.
type Outcome struct {
	Recipient  string
	Status     models.Outcome
	Error      string
	ProviderID string
}

// Adapter transmits a message to every recipient and reports one Outcome per
// recipient, in recipient order. A failure for one recipient never stops the
// others.
type Adapter interface {
	Channel() models.Channel
	Transmit(ctx context.Context, msg Message) []Outcome
}

// Registry maps each channel to its adapter.
type Registry map[models.Channel]Adapter

// Get returns the adapter for ch, or a noop adapter when none is registered.
func (r Registry) Get(ch models.Channel) Adapter {
	if a, ok := r[ch]; ok && a != nil {
		return a
	}
	return Noop{Ch: ch}
}

// Register adds a, keyed by its channel.
func (r Registry) Register(a Adapter) {
	r[a.Channel()] = a
}

const ErrNotConfigured = "channel not configured"

// Noop fails every recipient. It stands in for transports without credentials.
type Noop struct {
	Ch models.Channel
}

func (n Noop) Channel() models.Channel { return n.Ch }

func (n Noop) Transmit(ctx context.Context, msg Message) []Outcome {
	return failAll(msg.Recipients, ErrNotConfigured)
}

// DryRun reports every recipient as sent without calling the transport.
type DryRun struct {
	Ch models.Channel
}

func (d DryRun) Channel() models.Channel { return d.Ch }

func (d DryRun) Transmit(ctx context.Context, msg Message) []Outcome {
	out := make([]Outcome, len(msg.Recipients))
	for i, r := range msg.Recipients {
		out[i] = Outcome{Recipient: r, Status: models.OutcomeSent, ProviderID: "dry-run"}
	}
	return out
}

// ForEnvironment replaces every adapter with DryRun when env.DryRun is set.
func ForEnvironment(r Registry, dryRun bool) Registry {
	if !dryRun {
		return r
	}
	out := make(Registry, len(models.Channels))
	for _, ch := range models.Channels {
		out[ch] = DryRun{Ch: ch}
	}
	return out
}

func failAll(recipients []string, reason string) []Outcome {
	out := make([]Outcome, len(recipients))
	for i, r := range recipients {
		out[i] = Outcome{Recipient: r, Status: models.OutcomeFailed, Error: reason}
	}
	return out
}

// truncate caps provider error text stored with a delivery.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

const maxErrorLen = 200
