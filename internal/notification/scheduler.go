package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"notification-dispatch/internal/errs"
	"notification-dispatch/internal/logging"
)

const schedulerBatch = 100

// errNotClaimed marks a scheduled notification that is still scheduled
// because its move to sending did not happen.
var errNotClaimed = errors.New("could not claim scheduled notification")

// Scheduler periodically delivers scheduled notifications that have come due.
type Scheduler struct {
	store      Store
	dispatcher *Dispatcher
	logger     *logging.Logger
	interval   time.Duration
	now        func() time.Time
}

func NewScheduler(store Store, dispatcher *Dispatcher, interval time.Duration, logger *logging.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Scheduler{store: store, dispatcher: dispatcher, logger: logger, interval: interval, now: time.Now}
}

// SetClock replaces the time source used to decide what is due.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start runs the ticker loop in a goroutine until ctx is done.
func (s *Scheduler) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(ctx)
	}()
}

// Run blocks, calling RunDue on every tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Infof("Scheduler started (interval %s)", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Infof("Scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.RunDue(ctx); err != nil {
				s.logger.Errorf("Scheduler run failed: %v", err)
			}
		}
	}
}

// RunDue delivers every notification due at the current clock time and
// returns how many it attempted. Notifications claimed or cancelled
// concurrently are skipped.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	attempted := 0
	for {
		due, err := s.store.DueNotifications(ctx, s.now().UTC(), schedulerBatch)
		if err != nil {
			return attempted, err
		}
		progressed := false
		for _, n := range due {
			if ctx.Err() != nil {
				return attempted, ctx.Err()
			}
			_, err := s.dispatcher.SendScheduled(ctx, n)
			if errors.Is(err, errs.ErrVersionConflict) || errors.Is(err, errs.ErrNotFound) {
				s.logger.Debugf("Scheduled notification %s already claimed, skipping", n.ID)
				continue
			}
			if errors.Is(err, errNotClaimed) {
				return attempted, err
			}
			progressed = true
			attempted++
			if err != nil && errs.KindOf(err) != errs.KindTransportFailure {
				s.logger.Errorf("Scheduled notification %s failed: %v", n.ID, err)
			}
		}
		if len(due) < schedulerBatch || !progressed {
			return attempted, nil
		}
	}
}
