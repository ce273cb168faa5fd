package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/config"
	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/memstore"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/providers"
	"notification-dispatch/internal/recipient"
	"notification-dispatch/internal/templates"
)

// fakeAdapter records every message and fails the recipients listed in fail.
type fakeAdapter struct {
	ch models.Channel

	mu    sync.Mutex
	calls []providers.Message
	fail  map[string]string
}

func newFakeAdapter(ch models.Channel) *fakeAdapter {
	return &fakeAdapter{ch: ch, fail: map[string]string{}}
}

func (f *fakeAdapter) Channel() models.Channel { return f.ch }

func (f *fakeAdapter) Transmit(ctx context.Context, msg providers.Message) []providers.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)
	out := make([]providers.Outcome, len(msg.Recipients))
	for i, r := range msg.Recipients {
		if reason, ok := f.fail[r]; ok {
			out[i] = providers.Outcome{Recipient: r, Status: models.OutcomeFailed, Error: reason}
			continue
		}
		out[i] = providers.Outcome{Recipient: r, Status: models.OutcomeSent, ProviderID: "id-" + r}
	}
	return out
}

func (f *fakeAdapter) failFor(recipients ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range recipients {
		f.fail[r] = "provider rejected " + r
	}
}

func (f *fakeAdapter) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = map[string]string{}
}

func (f *fakeAdapter) Calls() []providers.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]providers.Message(nil), f.calls...)
}

// recordingSink keeps every event it is given.
type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (s *recordingSink) Publish(ctx context.Context, ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) Types() []models.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	store      *memstore.Store
	templates  *templates.Service
	dispatcher *Dispatcher
	tracker    *Tracker
	email      *fakeAdapter
	whatsapp   *fakeAdapter
	web        *fakeAdapter
	events     *recordingSink
}

// newFixture wires a dispatcher over memstore with fake email, whatsapp and
// web adapters. SMS is left unconfigured.
func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	logger := logging.NewNop()
	st := memstore.New()
	tpl := templates.NewService(st, logger)
	validator, err := recipient.NewValidator("")
	require.NoError(t, err)

	f := &fixture{
		store:     st,
		templates: tpl,
		email:     newFakeAdapter(models.ChannelEmail),
		whatsapp:  newFakeAdapter(models.ChannelWhatsApp),
		web:       newFakeAdapter(models.ChannelWeb),
		events:    &recordingSink{},
	}
	adapters := providers.Registry{}
	adapters.Register(f.email)
	adapters.Register(f.whatsapp)
	adapters.Register(f.web)

	f.dispatcher = NewDispatcher(st, tpl, adapters, validator, logger, cfg)
	f.dispatcher.SetEventSink(f.events)
	f.tracker = NewTracker(st, f.dispatcher, logger)
	return f
}

func emailRequest(recipients ...string) models.SendRequest {
	return models.SendRequest{
		Channel:    models.ChannelEmail,
		Recipients: recipients,
		Content:    models.RawContent{Subject: "Order shipped", Message: "Your order is on its way"},
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
