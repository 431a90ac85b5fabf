// Package relay turns chat messages carrying short-video links into video
// replies. It owns the request queue, the session rotation policy around the
// extractor, delivery with attribution and failure reporting.
package relay

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/subculture-collective/reelrelay/credentials"
	"github.com/subculture-collective/reelrelay/links"
)

// Sender identifies who posted the triggering message.
type Sender struct {
	ID          int64
	Username    string
	DisplayName string
}

// Name returns the best available human name for the sender.
func (s Sender) Name() string {
	switch {
	case s.DisplayName != "":
		return s.DisplayName
	case s.Username != "":
		return "@" + s.Username
	default:
		return fmt.Sprintf("user %d", s.ID)
	}
}

// Message is an inbound chat message as seen by the dispatcher.
type Message struct {
	ChatID    int64
	MessageID int
	Sender    Sender
	Text      string
}

// DownloadRequest is one admitted link waiting for or undergoing resolution.
type DownloadRequest struct {
	ID          string
	ChatID      int64
	MessageID   int
	Sender      Sender
	Text        string
	URL         string
	Platform    links.Platform
	SubmittedAt time.Time
}

// Outcome classifies a single extraction or delivery attempt.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeRateLimited    Outcome = "rate_limited"
	OutcomeInvalidSession Outcome = "invalid_session"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeTransientError Outcome = "transient_error"
	OutcomeFatalError     Outcome = "fatal_error"
	OutcomeDeliveryFailed Outcome = "delivery_failed"
)

// Describe is the short cause shown in operator summaries.
func (o Outcome) Describe() string {
	switch o {
	case OutcomeSuccess:
		return "downloaded"
	case OutcomeRateLimited:
		return "rate limited"
	case OutcomeInvalidSession:
		return "session rejected (login required)"
	case OutcomeNotFound:
		return "content not found or has no video"
	case OutcomeTransientError:
		return "temporary network or server error"
	case OutcomeFatalError:
		return "extractor failed"
	case OutcomeDeliveryFailed:
		return "could not deliver the file to the chat"
	default:
		return string(o)
	}
}

// Payload is a downloaded media file ready for delivery.
type Payload struct {
	Path     string
	Dir      string
	Size     int64
	Title    string
	Duration int
	Width    int
	Height   int
}

// Cleanup removes the scratch directory holding the payload.
func (p *Payload) Cleanup() {
	if p == nil || p.Dir == "" {
		return
	}
	if err := os.RemoveAll(p.Dir); err != nil {
		slog.Warn("payload cleanup failed", slog.String("dir", p.Dir), slog.Any("err", err), slog.String("component", "relay"))
	}
}

// AttemptResult records one extractor invocation (or the final delivery step).
// Credential is nil for unauthenticated attempts.
type AttemptResult struct {
	Credential *credentials.Credential
	Outcome    Outcome
	Payload    *Payload
	Log        string
	StartedAt  time.Time
	Duration   time.Duration
}

// Label names the session used by the attempt.
func (a AttemptResult) Label() string {
	if a.Credential == nil {
		return credentials.Credential{}.Label()
	}
	return a.Credential.Label()
}
