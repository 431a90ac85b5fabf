package relay

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/subculture-collective/reelrelay/links"
	"github.com/subculture-collective/reelrelay/telemetry"
)

// Submitter accepts requests without blocking.
type Submitter interface {
	Submit(req DownloadRequest) int
}

// Dispatcher is the listener-side entry point: it filters messages and admits
// qualifying ones to the queue.
type Dispatcher struct {
	allowed map[int64]struct{}
	queue   Submitter
	now     func() time.Time
	logger  *slog.Logger
}

// NewDispatcher admits messages only from allowedChats.
func NewDispatcher(allowedChats []int64, queue Submitter) *Dispatcher {
	allowed := make(map[int64]struct{}, len(allowedChats))
	for _, id := range allowedChats {
		allowed[id] = struct{}{}
	}
	return &Dispatcher{
		allowed: allowed,
		queue:   queue,
		now:     time.Now,
		logger:  slog.Default().With(slog.String("component", "relay_dispatcher")),
	}
}

// Allowed reports whether chatID may use the relay.
func (d *Dispatcher) Allowed(chatID int64) bool {
	_, ok := d.allowed[chatID]
	return ok
}

// HandleMessage admits msg if it comes from an allowed chat and carries a
// supported link. It reports whether a request was queued.
func (d *Dispatcher) HandleMessage(msg Message) bool {
	if !d.Allowed(msg.ChatID) {
		d.logger.Debug("message from unlisted chat ignored", slog.Int64("chat_id", msg.ChatID))
		return false
	}
	if msg.Text == "" {
		return false
	}
	link, ok := links.Classify(msg.Text)
	if !ok {
		return false
	}
	req := DownloadRequest{
		ID:          uuid.New().String(),
		ChatID:      msg.ChatID,
		MessageID:   msg.MessageID,
		Sender:      msg.Sender,
		Text:        msg.Text,
		URL:         link.URL,
		Platform:    link.Platform,
		SubmittedAt: d.now(),
	}
	depth := d.queue.Submit(req)
	telemetry.IncAdmitted()
	d.logger.Info("request queued",
		slog.String("request_id", req.ID),
		slog.String("platform", string(req.Platform)),
		slog.Int64("chat_id", req.ChatID),
		slog.Int("queue_depth", depth))
	return true
}
