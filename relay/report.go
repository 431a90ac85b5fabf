package relay

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/subculture-collective/reelrelay/telemetry"
)

// CauseShutdown is the log line attached to requests dropped at shutdown.
const CauseShutdown = "relay shutting down before the request was processed"

// FailureReport describes one terminally failed request for operators.
type FailureReport struct {
	Request  DownloadRequest
	Attempts []AttemptResult
	At       time.Time
}

// Cause is the short cause derived from the last attempt.
func (r FailureReport) Cause() string {
	if len(r.Attempts) == 0 {
		return "no attempt was made"
	}
	last := r.Attempts[len(r.Attempts)-1]
	cause := last.Outcome.Describe()
	if len(r.Attempts) > 1 && (last.Outcome == OutcomeRateLimited || last.Outcome == OutcomeInvalidSession || last.Outcome == OutcomeTransientError) {
		cause += fmt.Sprintf(" after %d attempts", len(r.Attempts))
	}
	return cause
}

// Outcome of the last attempt, or fatal_error when there were none.
func (r FailureReport) Outcome() Outcome {
	if len(r.Attempts) == 0 {
		return OutcomeFatalError
	}
	return r.Attempts[len(r.Attempts)-1].Outcome
}

// Summary is the short HTML caption sent with the report.
func (r FailureReport) Summary() string {
	var b strings.Builder
	b.WriteString("<b>Download failed</b>\n")
	fmt.Fprintf(&b, "Time: %s\n", r.At.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Platform: %s\n", html.EscapeString(r.Request.Platform.Label()))
	fmt.Fprintf(&b, "Cause: %s\n", html.EscapeString(r.Cause()))
	fmt.Fprintf(&b, "User: %s\n", Mention(r.Request.Sender))
	fmt.Fprintf(&b, "Chat: <code>%d</code>", r.Request.ChatID)
	return b.String()
}

// FileName is the attachment name, e.g. report_tiktok_20250102_150405.txt.
func (r FailureReport) FileName() string {
	return fmt.Sprintf("report_%s_%s.txt", r.Request.Platform, r.At.Format("20060102_150405"))
}

// Log renders the full diagnostic attachment.
func (r FailureReport) Log() []byte {
	const rule = "=================================================="
	var b strings.Builder
	b.WriteString("Relay failure report\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Time:       %s\n", r.At.Format(time.RFC3339))
	fmt.Fprintf(&b, "Request:    %s\n", r.Request.ID)
	fmt.Fprintf(&b, "Platform:   %s\n", r.Request.Platform.Label())
	fmt.Fprintf(&b, "URL:        %s\n", r.Request.URL)
	fmt.Fprintf(&b, "Chat:       %d (message %d)\n", r.Request.ChatID, r.Request.MessageID)
	fmt.Fprintf(&b, "User:       %s", r.Request.Sender.Name())
	if r.Request.Sender.Username != "" {
		fmt.Fprintf(&b, " (@%s)", r.Request.Sender.Username)
	}
	fmt.Fprintf(&b, " id=%d\n", r.Request.Sender.ID)
	if !r.Request.SubmittedAt.IsZero() {
		fmt.Fprintf(&b, "Submitted:  %s\n", r.Request.SubmittedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Cause:      %s\n", r.Cause())
	fmt.Fprintf(&b, "Attempts:   %d\n", len(r.Attempts))
	b.WriteString(rule + "\n")
	for i, a := range r.Attempts {
		fmt.Fprintf(&b, "\nAttempt %d/%d | %s", i+1, len(r.Attempts), a.Label())
		if a.Credential != nil {
			fmt.Fprintf(&b, " (%s)", a.Credential.File())
		}
		fmt.Fprintf(&b, " | %s | %s\n", a.Outcome, a.Duration.Round(time.Millisecond))
		b.WriteString(strings.Repeat("-", len(rule)) + "\n")
		log := strings.TrimSpace(a.Log)
		if log == "" {
			log = "(no output)"
		}
		b.WriteString(log + "\n")
	}
	return []byte(b.String())
}

// Reporter sends failure reports to the operator chat. A zero chat id turns
// it into a no-op.
type Reporter struct {
	messenger Messenger
	adminChat int64
	now       func() time.Time
	logger    *slog.Logger
}

// NewReporter builds a reporter for adminChat (0 disables reporting).
func NewReporter(m Messenger, adminChat int64) *Reporter {
	return &Reporter{
		messenger: m,
		adminChat: adminChat,
		now:       time.Now,
		logger:    slog.Default().With(slog.String("component", "relay_reporter")),
	}
}

// Enabled reports whether an operator chat is configured.
func (r *Reporter) Enabled() bool { return r != nil && r.adminChat != 0 }

// Build assembles a report for req stamped with the current time.
func (r *Reporter) Build(req DownloadRequest, attempts []AttemptResult) FailureReport {
	return FailureReport{Request: req, Attempts: attempts, At: r.now()}
}

// Report sends rep once. Errors are logged and counted, never returned.
func (r *Reporter) Report(ctx context.Context, rep FailureReport) {
	if !r.Enabled() {
		return
	}
	err := r.messenger.SendDocument(ctx, r.adminChat, rep.FileName(), rep.Log(), rep.Summary())
	telemetry.RecordReport(err == nil)
	if err != nil {
		r.logger.Error("failure report not sent",
			slog.String("request_id", rep.Request.ID),
			slog.Int64("admin_chat", r.adminChat),
			slog.Any("err", err))
		return
	}
	r.logger.Info("failure report sent",
		slog.String("request_id", rep.Request.ID),
		slog.String("outcome", string(rep.Outcome())))
}
