package relay

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/subculture-collective/reelrelay/credentials"
	"github.com/subculture-collective/reelrelay/links"
)

type pipeline struct {
	relay *Relay
	msgr  *fakeMessenger
	ext   *scriptedExtractor
	pool  *credentials.Pool
}

func newPipeline(t *testing.T, pool *credentials.Pool, script map[int][]Outcome, adminChat int64) pipeline {
	t.Helper()
	m := &fakeMessenger{}
	ext := newScripted(t, script)
	ctrl := NewController(pool, ext, testPolicy())
	r := New(ctrl, NewDelivery(m, 0, true), NewReporter(m, adminChat), m, Notices{Failure: "could not fetch", NotFound: "nothing to fetch"})
	return pipeline{relay: r, msgr: m, ext: ext, pool: pool}
}

func TestHandleTikTokRotatesPastInvalidSession(t *testing.T) {
	p := newPipeline(t, poolWith(links.TikTok, 3), map[int][]Outcome{1: {OutcomeInvalidSession}, 2: {OutcomeSuccess}}, -999)
	req := testRequest(links.TikTok)

	p.relay.Handle(context.Background(), req)

	if len(p.msgr.videos) != 1 {
		t.Fatalf("videos = %d, want 1", len(p.msgr.videos))
	}
	if len(p.msgr.docs) != 0 {
		t.Errorf("reports = %d, want 0", len(p.msgr.docs))
	}
	if got := len(p.ext.Calls()); got != 2 {
		t.Errorf("extractor calls = %d, want 2", got)
	}
	if st, _ := p.pool.Status(links.TikTok, 1); st != credentials.StatusInvalid {
		t.Errorf("session #1 status = %v, want invalid", st)
	}
	if len(p.msgr.deleted) != 1 || p.msgr.deleted[0] != req.MessageID {
		t.Errorf("deleted = %v", p.msgr.deleted)
	}
	if _, err := os.Stat(p.msgr.videos[0].path); !os.IsNotExist(err) {
		t.Errorf("payload should be removed after delivery, stat err = %v", err)
	}
}

func TestHandleInstagramWithoutSessions(t *testing.T) {
	pool := credentials.NewPool(nil)
	p := newPipeline(t, pool, map[int][]Outcome{0: {OutcomeSuccess}}, -999)

	p.relay.Handle(context.Background(), testRequest(links.Instagram))

	if len(p.msgr.videos) != 1 {
		t.Fatalf("videos = %d, want 1", len(p.msgr.videos))
	}
	if got := p.ext.Calls(); len(got) != 1 || got[0] != 0 {
		t.Errorf("calls = %v, want one anonymous call", got)
	}
	if len(pool.Snapshot()) != 0 {
		t.Error("pool mutated")
	}
}

func TestHandleFailureWithoutAdminChatSendsNoReport(t *testing.T) {
	p := newPipeline(t, poolWith(links.TikTok, 2), map[int][]Outcome{1: {OutcomeRateLimited}, 2: {OutcomeRateLimited}}, 0)

	p.relay.Handle(context.Background(), testRequest(links.TikTok))

	if len(p.msgr.docs) != 0 {
		t.Errorf("reports = %d, want 0", len(p.msgr.docs))
	}
	if len(p.msgr.texts) != 1 || p.msgr.texts[0].text != "could not fetch" {
		t.Errorf("notices = %+v", p.msgr.texts)
	}
	if p.msgr.texts[0].opts.ReplyTo != 42 {
		t.Errorf("notice should reply to the source message")
	}
}

func TestHandleFailureReportsEveryAttempt(t *testing.T) {
	p := newPipeline(t, poolWith(links.TikTok, 3), map[int][]Outcome{
		1: {OutcomeRateLimited}, 2: {OutcomeInvalidSession}, 3: {OutcomeRateLimited},
	}, -999)

	p.relay.Handle(context.Background(), testRequest(links.TikTok))

	if len(p.msgr.docs) != 1 {
		t.Fatalf("reports = %d, want 1", len(p.msgr.docs))
	}
	doc := p.msgr.docs[0]
	if doc.chatID != -999 {
		t.Errorf("report chat = %d", doc.chatID)
	}
	body := string(doc.data)
	for _, want := range []string{"Attempt 1/3 | session #1", "Attempt 2/3 | session #2", "Attempt 3/3 | session #3", "invalid_session"} {
		if !strings.Contains(body, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if !strings.Contains(doc.caption, "rate limited after 3 attempts") {
		t.Errorf("caption cause = %q", doc.caption)
	}
	if len(p.msgr.videos) != 0 {
		t.Error("no video expected")
	}
}

func TestHandleNotFoundUsesNotFoundNotice(t *testing.T) {
	p := newPipeline(t, poolWith(links.Instagram, 2), map[int][]Outcome{1: {OutcomeNotFound}}, 0)

	p.relay.Handle(context.Background(), testRequest(links.Instagram))

	if got := p.ext.Calls(); len(got) != 1 {
		t.Errorf("calls = %v, want exactly one", got)
	}
	if len(p.msgr.texts) != 1 || p.msgr.texts[0].text != "nothing to fetch" {
		t.Errorf("notices = %+v", p.msgr.texts)
	}
}

func TestHandleDeliveryFailure(t *testing.T) {
	p := newPipeline(t, poolWith(links.TikTok, 1), map[int][]Outcome{1: {OutcomeSuccess}}, -999)
	p.msgr.videoErr = errSendFailed

	p.relay.Handle(context.Background(), testRequest(links.TikTok))

	if len(p.msgr.docs) != 1 {
		t.Fatalf("reports = %d, want 1", len(p.msgr.docs))
	}
	if !strings.Contains(string(p.msgr.docs[0].data), string(OutcomeDeliveryFailed)) {
		t.Error("report should record delivery_failed")
	}
	if len(p.msgr.deleted) != 0 {
		t.Error("source message must stay when delivery failed")
	}
	if st, _ := p.pool.Status(links.TikTok, 1); st != credentials.StatusHealthy {
		t.Errorf("extraction succeeded, session status = %v", st)
	}
}

func TestHandleReportSendFailureIsSwallowed(t *testing.T) {
	p := newPipeline(t, poolWith(links.TikTok, 1), map[int][]Outcome{1: {OutcomeFatalError}}, -999)
	p.msgr.docErr = errors.New("chat unreachable")

	p.relay.Handle(context.Background(), testRequest(links.TikTok))

	if len(p.msgr.texts) != 1 {
		t.Errorf("user notice should still be sent, got %d", len(p.msgr.texts))
	}
}

func TestAbandonReportsShutdown(t *testing.T) {
	p := newPipeline(t, poolWith(links.TikTok, 1), nil, -999)

	p.relay.Abandon(context.Background(), testRequest(links.TikTok))

	if len(p.ext.Calls()) != 0 {
		t.Error("abandoned request must not reach the extractor")
	}
	if len(p.msgr.docs) != 1 || !strings.Contains(string(p.msgr.docs[0].data), CauseShutdown) {
		t.Errorf("expected shutdown report, got %+v", p.msgr.docs)
	}
}
