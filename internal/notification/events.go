package notification

import (
	"context"
	"errors"
	"sync"

	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/models"
)

// EventSink observes notification lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, ev models.Event) error
}

// Sinks fans an event out to every sink and joins their errors.
type Sinks []EventSink

func (s Sinks) Publish(ctx context.Context, ev models.Event) error {
	var errList []error
	for _, sink := range s {
		if err := sink.Publish(ctx, ev); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// Publisher hands events to a sink from a background goroutine so slow sinks
// never hold up a send. Events are dropped when the buffer is full.
type Publisher struct {
	sink   EventSink
	logger *logging.Logger
	events chan models.Event
}

func NewPublisher(sink EventSink, size int, logger *logging.Logger) *Publisher {
	if size <= 0 {
		size = 100
	}
	return &Publisher{
		sink:   sink,
		logger: logger,
		events: make(chan models.Event, size),
	}
}

// Start runs the delivery loop until ctx is done, then drains what is
// already buffered.
func (p *Publisher) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				p.drain()
				return
			case ev := <-p.events:
				p.deliver(ev)
			}
		}
	}()
}

func (p *Publisher) Publish(ctx context.Context, ev models.Event) error {
	select {
	case p.events <- ev:
	default:
		p.logger.Warnf("Event buffer full, dropping %s for %s", ev.Type, ev.NotificationID)
	}
	return nil
}

func (p *Publisher) drain() {
	for {
		select {
		case ev := <-p.events:
			p.deliver(ev)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ev models.Event) {
	if err := p.sink.Publish(context.Background(), ev); err != nil {
		p.logger.Warnf("Event sink failed for %s %s: %v", ev.Type, ev.NotificationID, err)
	}
}
