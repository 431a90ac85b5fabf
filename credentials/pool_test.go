package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/subculture-collective/reelrelay/links"
)

func TestCandidatesNoSessions(t *testing.T) {
	p := NewPool(nil)
	got := p.Candidates(links.Instagram)
	if len(got) != 1 || !got[0].Anonymous() {
		t.Fatalf("want single anonymous candidate, got %+v", got)
	}
	if got[0].Platform != links.Instagram {
		t.Errorf("platform = %q", got[0].Platform)
	}
	p.Mark(got[0], StatusInvalid)
	if len(p.Snapshot()) != 0 {
		t.Error("marking the anonymous candidate must not add sessions")
	}
}

func TestCandidatesOrderAndInvalidSkip(t *testing.T) {
	p := NewPool(map[links.Platform][]string{
		links.TikTok: {"/c/a.txt", "/c/b.txt", "/c/c.txt"},
	})
	cands := p.Candidates(links.TikTok)
	if len(cands) != 3 {
		t.Fatalf("len = %d, want 3", len(cands))
	}
	for i, c := range cands {
		if c.Ordinal != i+1 {
			t.Errorf("candidate %d ordinal = %d", i, c.Ordinal)
		}
	}

	p.Mark(cands[0], StatusInvalid)
	p.Mark(cands[1], StatusExhausted)
	next := p.Candidates(links.TikTok)
	if len(next) != 2 || next[0].Ordinal != 2 || next[1].Ordinal != 3 {
		t.Fatalf("unexpected candidates after marking: %+v", next)
	}
	if next[0].Status != StatusExhausted {
		t.Errorf("status = %v, want exhausted", next[0].Status)
	}
	if st, ok := p.Status(links.TikTok, 1); !ok || st != StatusInvalid {
		t.Errorf("session #1 status = %v ok=%v", st, ok)
	}
}

func TestCandidatesAllInvalidFallsBackToAnonymous(t *testing.T) {
	p := NewPool(map[links.Platform][]string{links.Instagram: {"/c/1.txt"}})
	p.Mark(p.Candidates(links.Instagram)[0], StatusInvalid)
	got := p.Candidates(links.Instagram)
	if len(got) != 1 || !got[0].Anonymous() {
		t.Fatalf("want anonymous fallback, got %+v", got)
	}
	if p.Count(links.Instagram) != 1 {
		t.Errorf("count = %d, want 1", p.Count(links.Instagram))
	}
}

func TestCredentialLabel(t *testing.T) {
	if got := (Credential{Ordinal: 2, Path: "/x/cookies2.txt"}).Label(); got != "session #2" {
		t.Errorf("label = %q", got)
	}
	if got := (Credential{}).Label(); got != "no session" {
		t.Errorf("anonymous label = %q", got)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"cookies10.txt", "cookies2.txt", "cookies.txt", "cookies_1.txt",
		"cookie_tiktok-2.txt", "cookie_tiktok-1.txt",
		"notes.txt", "cookies2.txt.bak",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("# Netscape HTTP Cookie File\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "cookies3.txt"), 0o755); err != nil {
		t.Fatal(err)
	}

	p, err := Discover(dir, DefaultPrefixes)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	ig := p.Candidates(links.Instagram)
	wantIG := []string{"cookies.txt", "cookies_1.txt", "cookies2.txt", "cookies10.txt"}
	if len(ig) != len(wantIG) {
		t.Fatalf("instagram sessions = %d, want %d", len(ig), len(wantIG))
	}
	for i, c := range ig {
		if c.File() != wantIG[i] || c.Ordinal != i+1 {
			t.Errorf("instagram[%d] = %s #%d, want %s #%d", i, c.File(), c.Ordinal, wantIG[i], i+1)
		}
	}

	tt := p.Candidates(links.TikTok)
	if len(tt) != 2 || tt[0].File() != "cookie_tiktok-1.txt" {
		t.Errorf("tiktok sessions = %+v", tt)
	}
	if yt := p.Candidates(links.YouTubeShorts); len(yt) != 1 || !yt[0].Anonymous() {
		t.Errorf("youtube shorts should fall back to anonymous, got %+v", yt)
	}
}

func TestDiscoverMissingDir(t *testing.T) {
	p, err := Discover(filepath.Join(t.TempDir(), "nope"), DefaultPrefixes)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(p.Snapshot()) != 0 {
		t.Error("expected empty pool")
	}
}

func TestReset(t *testing.T) {
	p := NewPool(map[links.Platform][]string{links.TikTok: {"/c/cookie_tiktok.txt"}})
	p.Mark(Credential{Platform: links.TikTok, Ordinal: 1, Path: "/c/cookie_tiktok.txt"}, StatusInvalid)
	if got := p.Candidates(links.TikTok); !got[0].Anonymous() {
		t.Fatalf("invalid session should not be a candidate: %+v", got)
	}
	if !p.Reset(links.TikTok, 1) {
		t.Fatal("Reset should find session #1")
	}
	if p.Reset(links.TikTok, 2) || p.Reset(links.Instagram, 1) {
		t.Error("Reset of a missing session should report false")
	}
	if got := p.Candidates(links.TikTok); len(got) != 1 || got[0].Ordinal != 1 || got[0].Status != StatusUnknown {
		t.Errorf("candidates after reset = %+v", got)
	}
}
