package notification

import (
	"context"
	"sync"

	"notification-dispatch/internal/config"
	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/models"
)

// Sender is what the queue workers call for each request.
type Sender interface {
	Send(ctx context.Context, req models.SendRequest) (models.DispatchResult, error)
}

// Queue runs SendRequests on a fixed pool of workers.
type Queue struct {
	sender  Sender
	logger  *logging.Logger
	tasks   chan models.SendRequest
	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
}

func NewQueue(sender Sender, logger *logging.Logger, cfg config.Config) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	size := cfg.Notification.QueueSize
	if size <= 0 {
		size = 500
	}
	workers := cfg.Notification.MaxWorkers
	if workers <= 0 {
		workers = 10
	}
	return &Queue{
		sender:  sender,
		logger:  logger,
		tasks:   make(chan models.SendRequest, size),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker pool.
func (q *Queue) Start(wg *sync.WaitGroup) {
	q.wg = wg
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Stop signals the workers to exit after their current request.
func (q *Queue) Stop() {
	q.cancel()
}

// Enqueue adds a request without blocking. It returns false and drops the
// request when the queue is full.
func (q *Queue) Enqueue(req models.SendRequest) bool {
	select {
	case q.tasks <- req:
		q.logger.Debugf("Queued %s request for %d recipients", req.Channel, len(req.Recipients))
		return true
	default:
		q.logger.Errorf("Queue full, dropping %s request for %d recipients", req.Channel, len(req.Recipients))
		return false
	}
}

// worker processes requests until the queue is stopped.
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			q.logger.Infof("Worker %d stopped", id)
			return
		case req := <-q.tasks:
			res, err := q.sender.Send(q.ctx, req)
			if err != nil {
				q.logger.Errorf("Worker %d: %s send failed: %v", id, req.Channel, err)
				continue
			}
			q.logger.Infof("Worker %d: notification %s %s", id, res.NotificationID, res.Status)
		}
	}
}
