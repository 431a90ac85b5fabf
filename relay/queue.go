package relay

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/subculture-collective/reelrelay/telemetry"
)

// Handler resolves one request completely (delivery or report) before
// returning.
type Handler interface {
	Handle(ctx context.Context, req DownloadRequest)
	// Abandon is called for requests still queued when the worker stops.
	Abandon(ctx context.Context, req DownloadRequest)
}

// Queue is a strict FIFO with a single worker. Submit never blocks.
type Queue struct {
	mu      sync.Mutex
	pending []DownloadRequest
	// closed is set once the worker has drained; later submissions are
	// abandoned immediately.
	closed  bool
	wake    chan struct{}
	running atomic.Bool
	handler Handler
	logger  *slog.Logger
}

// NewQueue returns a queue feeding handler.
func NewQueue(handler Handler) *Queue {
	return &Queue{
		wake:    make(chan struct{}, 1),
		handler: handler,
		logger:  slog.Default().With(slog.String("component", "relay_queue")),
	}
}

// Submit appends req and returns the number of requests now waiting. After
// the worker has stopped, req is handed to Abandon instead and 0 is returned.
func (q *Queue) Submit(req DownloadRequest) int {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("request submitted after the worker stopped", slog.String("request_id", req.ID))
		q.handler.Abandon(context.Background(), req)
		return 0
	}
	q.pending = append(q.pending, req)
	depth := len(q.pending)
	q.mu.Unlock()
	telemetry.SetQueueDepth(depth)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return depth
}

// Len returns the number of waiting requests (excluding the one in progress).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Running reports whether the worker loop is active.
func (q *Queue) Running() bool { return q.running.Load() }

func (q *Queue) pop() (DownloadRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return DownloadRequest{}, false
	}
	req := q.pending[0]
	q.pending[0] = DownloadRequest{}
	q.pending = q.pending[1:]
	telemetry.SetQueueDepth(len(q.pending))
	return req, true
}

// Run processes requests one at a time until ctx is done. The request in
// progress when ctx ends still runs to resolution; requests left in the queue
// are then abandoned.
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	q.closed = false
	q.mu.Unlock()
	q.running.Store(true)
	defer q.running.Store(false)
	q.logger.Info("queue worker started")

	work := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			q.drain(work)
			return nil
		}
		req, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				q.drain(work)
				return nil
			case <-q.wake:
			}
			continue
		}
		telemetry.Observe(telemetry.QueueWait, time.Since(req.SubmittedAt))
		telemetry.TimeFunc(telemetry.RequestDuration, func() { q.handler.Handle(work, req) })
	}
}

func (q *Queue) drain(ctx context.Context) {
	q.mu.Lock()
	left := q.pending
	q.pending = nil
	q.closed = true
	q.mu.Unlock()
	telemetry.SetQueueDepth(0)
	if len(left) > 0 {
		q.logger.Warn("queue worker stopping with pending requests", slog.Int("pending", len(left)))
	}
	for _, req := range left {
		q.handler.Abandon(ctx, req)
	}
	q.logger.Info("queue worker stopped")
}
