package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/subculture-collective/reelrelay/telemetry"
)

// Notices are the terse texts posted in the requesting chat on failure. An
// empty text disables that notice.
type Notices struct {
	Failure  string
	NotFound string
}

// Relay resolves queued requests: rotation, then delivery or reporting.
type Relay struct {
	controller *Controller
	delivery   *Delivery
	reporter   *Reporter
	messenger  Messenger
	notices    Notices
}

// New wires the request pipeline.
func New(controller *Controller, delivery *Delivery, reporter *Reporter, m Messenger, notices Notices) *Relay {
	return &Relay{controller: controller, delivery: delivery, reporter: reporter, messenger: m, notices: notices}
}

// Handle runs req to a terminal state.
func (r *Relay) Handle(ctx context.Context, req DownloadRequest) {
	ctx = telemetry.WithCorrelation(ctx, req.ID)
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "relay"),
		slog.String("platform", string(req.Platform)),
		slog.String("url", req.URL))
	logger.Info("processing request", slog.Duration("queued_for", time.Since(req.SubmittedAt)))

	res := r.controller.Resolve(ctx, req)
	if res.Succeeded() {
		defer res.Payload.Cleanup()
		err := r.delivery.Deliver(ctx, req, *res.Payload)
		if err == nil {
			telemetry.RecordResolved("delivered")
			logger.Info("request delivered", slog.Int("attempts", len(res.Attempts)))
			return
		}
		logger.Error("delivery failed", slog.Any("err", err))
		last, _ := res.Last()
		attempts := append(res.Attempts, AttemptResult{
			Credential: last.Credential,
			Outcome:    OutcomeDeliveryFailed,
			Log:        err.Error(),
			StartedAt:  time.Now(),
		})
		telemetry.RecordResolved("delivery_failed")
		r.fail(ctx, req, attempts)
		return
	}

	last, _ := res.Last()
	logger.Warn("request failed", slog.String("outcome", string(last.Outcome)), slog.Int("attempts", len(res.Attempts)))
	telemetry.RecordResolved("failed")
	r.fail(ctx, req, res.Attempts)
}

// Abandon reports a request that never reached the worker.
func (r *Relay) Abandon(ctx context.Context, req DownloadRequest) {
	telemetry.RecordResolved("abandoned")
	r.fail(ctx, req, []AttemptResult{{
		Outcome:   OutcomeFatalError,
		Log:       CauseShutdown,
		StartedAt: time.Now(),
	}})
}

func (r *Relay) fail(ctx context.Context, req DownloadRequest, attempts []AttemptResult) {
	rep := r.reporter.Build(req, attempts)
	r.reporter.Report(ctx, rep)
	r.notify(ctx, req, rep.Outcome())
}

// notify posts the terse in-chat notice as a reply to the original message.
func (r *Relay) notify(ctx context.Context, req DownloadRequest, outcome Outcome) {
	text := r.notices.Failure
	if outcome == OutcomeNotFound && r.notices.NotFound != "" {
		text = r.notices.NotFound
	}
	if text == "" {
		return
	}
	if err := r.messenger.SendText(ctx, req.ChatID, text, TextOptions{ReplyTo: req.MessageID}); err != nil {
		telemetry.IncNoticeFailed()
		slog.Warn("failure notice not sent", slog.String("request_id", req.ID), slog.Any("err", err), slog.String("component", "relay"))
	}
}
