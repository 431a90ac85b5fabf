package ytdlp

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/subculture-collective/reelrelay/relay"
)

// rule maps output fragments to an outcome. Rules are checked in order and the
// first rule with a matching fragment wins, so the Instagram message
// "rate-limit reached or login required" counts as a rate limit.
type rule struct {
	outcome   relay.Outcome
	fragments []string
}

var rules = []rule{
	{relay.OutcomeRateLimited, []string{
		"http error 429",
		"too many requests",
		"rate-limit",
		"rate limit",
		"ratelimit",
		"please wait a few minutes",
		"http error 403",
	}},
	{relay.OutcomeInvalidSession, []string{
		"login required",
		"log in for access",
		"not logged in",
		"cookies are no longer valid",
		"use --cookies",
		"checkpoint required",
		"sign in to confirm",
		"http error 401",
	}},
	{relay.OutcomeNotFound, []string{
		"http error 404",
		"not found",
		"video unavailable",
		"this video is unavailable",
		"is private",
		"has been removed",
		"does not exist",
		"no longer available",
		"no video formats found",
		"there is no video in this post",
		"unsupported url",
	}},
	{relay.OutcomeTransientError, []string{
		"http error 500",
		"http error 502",
		"http error 503",
		"http error 504",
		"internal server error",
		"bad gateway",
		"service unavailable",
		"gateway timeout",
		"timed out",
		"timeout",
		"connection reset",
		"connection refused",
		"connection aborted",
		"temporary failure in name resolution",
		"network is unreachable",
		"no route to host",
		"unexpected eof",
		"incomplete",
		"fragment",
	}},
}

// Classify maps the captured yt-dlp output and process error of one attempt
// to an outcome. ctxErr is the attempt context's error after the run.
func Classify(output string, runErr, ctxErr error) relay.Outcome {
	if errors.Is(ctxErr, context.DeadlineExceeded) || errors.Is(ctxErr, context.Canceled) {
		return relay.OutcomeTransientError
	}
	if runErr == nil {
		return relay.OutcomeSuccess
	}
	if errors.Is(runErr, exec.ErrNotFound) {
		return relay.OutcomeFatalError
	}
	lower := strings.ToLower(output)
	for _, r := range rules {
		for _, f := range r.fragments {
			if strings.Contains(lower, f) {
				return r.outcome
			}
		}
	}
	return relay.OutcomeFatalError
}
