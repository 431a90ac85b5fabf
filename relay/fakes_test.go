package relay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/subculture-collective/reelrelay/credentials"
	"github.com/subculture-collective/reelrelay/links"
)

// scriptedExtractor returns outcomes per session ordinal (0 = anonymous) in
// order; once a script is used up the last outcome repeats.
type scriptedExtractor struct {
	t      *testing.T
	mu     sync.Mutex
	script map[int][]Outcome
	calls  []int
	delay  time.Duration
}

func newScripted(t *testing.T, script map[int][]Outcome) *scriptedExtractor {
	return &scriptedExtractor{t: t, script: script}
}

func (s *scriptedExtractor) Extract(ctx context.Context, req DownloadRequest, cred credentials.Credential) AttemptResult {
	s.mu.Lock()
	s.calls = append(s.calls, cred.Ordinal)
	outs := s.script[cred.Ordinal]
	var out Outcome = OutcomeFatalError
	if len(outs) > 0 {
		out = outs[0]
		if len(outs) > 1 {
			s.script[cred.Ordinal] = outs[1:]
		}
	}
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return AttemptResult{Outcome: OutcomeTransientError, Log: ctx.Err().Error()}
		}
	}
	r := AttemptResult{Outcome: out, Log: "ERROR: " + string(out)}
	if out == OutcomeSuccess {
		dir := s.t.TempDir()
		path := filepath.Join(dir, "media.mp4")
		if err := os.WriteFile(path, []byte("video"), 0o600); err != nil {
			s.t.Fatal(err)
		}
		r.Payload = &Payload{Path: path, Dir: dir, Size: 5}
		r.Log = ""
	}
	return r
}

func (s *scriptedExtractor) Calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls...)
}

type sentVideo struct {
	chatID  int64
	caption string
	path    string
}

type sentDoc struct {
	chatID  int64
	name    string
	data    []byte
	caption string
}

type sentText struct {
	chatID int64
	text   string
	opts   TextOptions
}

type fakeMessenger struct {
	mu       sync.Mutex
	videos   []sentVideo
	docs     []sentDoc
	texts    []sentText
	deleted  []int
	videoErr error
	docErr   error
	textErr  map[int64]error
}

func (f *fakeMessenger) SendVideo(_ context.Context, chatID int64, media Payload, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.videoErr != nil {
		return f.videoErr
	}
	f.videos = append(f.videos, sentVideo{chatID: chatID, caption: caption, path: media.Path})
	return nil
}

func (f *fakeMessenger) SendDocument(_ context.Context, chatID int64, name string, data []byte, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docErr != nil {
		return f.docErr
	}
	f.docs = append(f.docs, sentDoc{chatID: chatID, name: name, data: data, caption: caption})
	return nil
}

func (f *fakeMessenger) SendText(_ context.Context, chatID int64, text string, opts TextOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.textErr[chatID]; err != nil {
		return err
	}
	f.texts = append(f.texts, sentText{chatID: chatID, text: text, opts: opts})
	return nil
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

var errSendFailed = errors.New("send failed")

func testPolicy() Policy {
	return Policy{TransientRetries: 2, TransientBackoff: time.Millisecond, AttemptTimeout: time.Second}
}

func poolWith(platform links.Platform, n int) *credentials.Pool {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join("/cookies", string(platform), string(rune('a'+i))+".txt")
	}
	return credentials.NewPool(map[links.Platform][]string{platform: paths})
}

func testRequest(platform links.Platform) DownloadRequest {
	return DownloadRequest{
		ID:          "req-1",
		ChatID:      -100,
		MessageID:   42,
		Sender:      Sender{ID: 7, Username: "alice", DisplayName: "Alice"},
		URL:         "https://vm.tiktok.com/ZMabc/",
		Platform:    platform,
		SubmittedAt: time.Now(),
	}
}
