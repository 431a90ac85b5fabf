package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/subculture-collective/reelrelay/credentials"
	"github.com/subculture-collective/reelrelay/telemetry"
)

// Extractor fetches the media behind a URL using one session (or none when
// cred is anonymous). It never returns an error: every failure is folded into
// the classified Outcome and the raw Log.
type Extractor interface {
	Extract(ctx context.Context, req DownloadRequest, cred credentials.Credential) AttemptResult
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, req DownloadRequest, cred credentials.Credential) AttemptResult

func (f ExtractorFunc) Extract(ctx context.Context, req DownloadRequest, cred credentials.Credential) AttemptResult {
	return f(ctx, req, cred)
}

// Policy holds the tunables of the rotation loop.
type Policy struct {
	// TransientRetries is how many extra attempts a session gets after a
	// transient error before the controller moves on.
	TransientRetries int
	TransientBackoff time.Duration
	// AttemptTimeout bounds a single extractor invocation.
	AttemptTimeout time.Duration
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{TransientRetries: 2, TransientBackoff: 5 * time.Second, AttemptTimeout: 3 * time.Minute}
}

type step int

const (
	stepDeliver step = iota
	stepRotate
	stepRetry
	stepAbort
)

// decisions is the per-outcome action of the rotation loop.
var decisions = map[Outcome]step{
	OutcomeSuccess:        stepDeliver,
	OutcomeRateLimited:    stepRotate,
	OutcomeInvalidSession: stepRotate,
	OutcomeTransientError: stepRetry,
	OutcomeNotFound:       stepAbort,
	OutcomeFatalError:     stepAbort,
}

// statusAfter is the session status recorded once a session is done with.
// Outcomes absent here leave the session untouched.
var statusAfter = map[Outcome]credentials.Status{
	OutcomeSuccess:        credentials.StatusHealthy,
	OutcomeRateLimited:    credentials.StatusExhausted,
	OutcomeInvalidSession: credentials.StatusInvalid,
	OutcomeTransientError: credentials.StatusExhausted,
}

// Resolution is the result of driving one request through the pool.
type Resolution struct {
	Request  DownloadRequest
	Attempts []AttemptResult
	// Payload is set only when an attempt succeeded.
	Payload *Payload
}

// Succeeded reports whether a payload is ready for delivery.
func (r Resolution) Succeeded() bool { return r.Payload != nil }

// Last returns the final attempt, if any.
func (r Resolution) Last() (AttemptResult, bool) {
	if len(r.Attempts) == 0 {
		return AttemptResult{}, false
	}
	return r.Attempts[len(r.Attempts)-1], true
}

// Controller walks the session candidates for a request in order and applies
// the outcome decisions.
type Controller struct {
	pool      *credentials.Pool
	extractor Extractor
	policy    Policy
	gate      *gate
	logger    *slog.Logger
}

// NewController builds a controller. Zero policy fields fall back to
// DefaultPolicy, except TransientRetries where zero means no retries.
func NewController(pool *credentials.Pool, extractor Extractor, policy Policy) *Controller {
	def := DefaultPolicy()
	if policy.TransientRetries < 0 {
		policy.TransientRetries = 0
	}
	if policy.TransientBackoff <= 0 {
		policy.TransientBackoff = def.TransientBackoff
	}
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = def.AttemptTimeout
	}
	return &Controller{
		pool:      pool,
		extractor: extractor,
		policy:    policy,
		gate:      newGate(1),
		logger:    slog.Default().With(slog.String("component", "relay_controller")),
	}
}

// InFlight returns the number of extractions running right now.
func (c *Controller) InFlight() int { return c.gate.active() }

// Pool exposes the session pool for diagnostics.
func (c *Controller) Pool() *credentials.Pool { return c.pool }

var errTransient = errors.New("transient extraction error")

// Resolve tries the candidates for req.Platform until one succeeds or the
// decisions say to stop.
func (c *Controller) Resolve(ctx context.Context, req DownloadRequest) Resolution {
	attrs := append(telemetry.RequestAttrs(req.ID, string(req.Platform), req.ChatID), attribute.String("url", req.URL))
	ctx, span := telemetry.StartSpan(ctx, "relay", "relay.resolve", attrs...)
	defer span.End()

	logger := c.logger.With(slog.String("request_id", req.ID), slog.String("platform", string(req.Platform)))
	res := Resolution{Request: req}
	candidates := c.pool.Candidates(req.Platform)

	for _, cand := range candidates {
		last := c.trySession(ctx, req, cand, &res, logger)
		c.settle(cand, last.Outcome, logger)

		switch decisions[last.Outcome] {
		case stepDeliver:
			res.Payload = last.Payload
			span.SetAttributes(attribute.Int("attempts", len(res.Attempts)))
			telemetry.SetSpanSuccess(span)
			return res
		case stepAbort:
			logger.Info("aborting rotation", slog.String("outcome", string(last.Outcome)), slog.String("session", cand.Label()))
			telemetry.RecordError(span, fmt.Errorf("aborted: %s", last.Outcome))
			return res
		default:
			logger.Info("rotating to next session", slog.String("outcome", string(last.Outcome)), slog.String("session", cand.Label()))
		}
	}

	span.SetAttributes(attribute.Int("attempts", len(res.Attempts)))
	telemetry.RecordError(span, errors.New("all sessions exhausted"))
	logger.Warn("all sessions exhausted", slog.Int("attempts", len(res.Attempts)))
	return res
}

// trySession runs one session, repeating it on transient errors according to
// the policy. Every attempt is appended to res; the last one is returned.
func (c *Controller) trySession(ctx context.Context, req DownloadRequest, cand credentials.Credential, res *Resolution, logger *slog.Logger) AttemptResult {
	var last AttemptResult
	op := func() (AttemptResult, error) {
		last = c.attempt(ctx, req, cand)
		res.Attempts = append(res.Attempts, last)
		if decisions[last.Outcome] == stepRetry {
			return last, errTransient
		}
		return last, nil
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.policy.TransientBackoff)),
		backoff.WithMaxTries(uint(c.policy.TransientRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warn("transient extraction error, retrying session",
				slog.String("session", cand.Label()),
				slog.Duration("backoff", wait))
		}))
	if err != nil && !errors.Is(err, errTransient) {
		logger.Warn("retry loop interrupted", slog.Any("err", err))
	}
	return last
}

// attempt runs one bounded extractor invocation behind the gate.
func (c *Controller) attempt(ctx context.Context, req DownloadRequest, cand credentials.Credential) AttemptResult {
	ctx, span := telemetry.StartSpan(ctx, "relay", "relay.attempt",
		attribute.String("platform", string(req.Platform)),
		attribute.String("session", cand.Label()))
	defer span.End()

	started := time.Now()
	if !c.gate.acquire(ctx) {
		return AttemptResult{Credential: credPtr(cand), Outcome: OutcomeTransientError, Log: "canceled while waiting for extraction slot", StartedAt: started}
	}
	telemetry.SetExtractionsActive(c.gate.active())
	defer func() {
		c.gate.release()
		telemetry.SetExtractionsActive(c.gate.active())
	}()

	actx, cancel := context.WithTimeout(ctx, c.policy.AttemptTimeout)
	defer cancel()
	r := c.extractor.Extract(actx, req, cand)
	if r.Outcome != OutcomeSuccess && errors.Is(actx.Err(), context.DeadlineExceeded) {
		r.Outcome = OutcomeTransientError
		r.Log += fmt.Sprintf("\nattempt exceeded %s", c.policy.AttemptTimeout)
	}
	if r.Outcome == OutcomeSuccess && r.Payload == nil {
		r.Outcome = OutcomeFatalError
		r.Log += "\nextractor reported success without a file"
	}
	if r.Outcome == "" {
		r.Outcome = OutcomeFatalError
	}
	r.Credential = credPtr(cand)
	if r.StartedAt.IsZero() {
		r.StartedAt = started
	}
	if r.Duration == 0 {
		r.Duration = time.Since(started)
	}

	telemetry.RecordAttempt(string(req.Platform), string(r.Outcome), r.Duration)
	span.SetAttributes(attribute.String("outcome", string(r.Outcome)))
	if r.Outcome == OutcomeSuccess {
		telemetry.SetSpanSuccess(span)
	} else {
		telemetry.RecordError(span, errors.New(string(r.Outcome)))
	}
	return r
}

// settle records the session status implied by the final outcome on it.
func (c *Controller) settle(cand credentials.Credential, outcome Outcome, logger *slog.Logger) {
	status, ok := statusAfter[outcome]
	if !ok || cand.Anonymous() {
		return
	}
	c.pool.Mark(cand, status)
	telemetry.SetCredentialStatus(string(cand.Platform), strconv.Itoa(cand.Ordinal), int(status))
	logger.Debug("session status updated", slog.String("session", cand.Label()), slog.String("status", status.String()))
}

func credPtr(c credentials.Credential) *credentials.Credential {
	if c.Anonymous() {
		return nil
	}
	return &c
}
