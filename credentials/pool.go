// Package credentials keeps the per-platform cookie sessions used to
// authenticate extraction attempts and tracks how each one is doing during
// the current run.
//
// Status lives only in memory. Files are read at discovery and never written.
package credentials

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/subculture-collective/reelrelay/links"
)

// Status is the in-memory health of a session.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusExhausted
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusExhausted:
		return "exhausted"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Credential is one cookie session. The zero Ordinal with an empty Path is the
// synthetic unauthenticated candidate.
type Credential struct {
	Platform links.Platform
	Ordinal  int
	Path     string
	Status   Status
}

// Anonymous reports whether c stands for an attempt without cookies.
func (c Credential) Anonymous() bool { return c.Path == "" }

// Label is the identifier used in logs and reports ("session #2").
func (c Credential) Label() string {
	if c.Anonymous() {
		return "no session"
	}
	return fmt.Sprintf("session #%d", c.Ordinal)
}

// File returns the base name of the cookie file.
func (c Credential) File() string {
	if c.Anonymous() {
		return ""
	}
	return filepath.Base(c.Path)
}

// Pool holds ordered sessions per platform.
type Pool struct {
	mu       sync.RWMutex
	sessions map[links.Platform][]Credential
}

// NewPool builds a pool from explicit cookie file paths. Ordinals follow the
// slice order starting at 1.
func NewPool(paths map[links.Platform][]string) *Pool {
	p := &Pool{sessions: make(map[links.Platform][]Credential, len(paths))}
	for platform, files := range paths {
		list := make([]Credential, 0, len(files))
		for i, path := range files {
			list = append(list, Credential{Platform: platform, Ordinal: i + 1, Path: path})
		}
		p.sessions[platform] = list
	}
	return p
}

// Candidates returns the sessions to try for platform, ascending by ordinal,
// skipping sessions found invalid during this run. Exhausted sessions stay in
// the list. When no usable session exists the single unauthenticated
// candidate is returned instead.
func (p *Pool) Candidates(platform links.Platform) []Credential {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Credential
	for _, c := range p.sessions[platform] {
		if c.Status == StatusInvalid {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return []Credential{{Platform: platform}}
	}
	return out
}

// Mark records the status of a session after an attempt. Marking the
// unauthenticated candidate is a no-op.
func (p *Pool) Mark(c Credential, status Status) {
	if c.Anonymous() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.sessions[c.Platform]
	for i := range list {
		if list[i].Ordinal == c.Ordinal {
			list[i].Status = status
			return
		}
	}
}

// Status returns the current status of the session with the given ordinal.
func (p *Pool) Status(platform links.Platform, ordinal int) (Status, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.sessions[platform] {
		if c.Ordinal == ordinal {
			return c.Status, true
		}
	}
	return StatusUnknown, false
}

// Count returns the number of configured sessions for platform.
func (p *Pool) Count(platform links.Platform) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions[platform])
}

// Snapshot copies every session, grouped by platform in the order of
// links.Platforms.
func (p *Pool) Snapshot() []Credential {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Credential
	for _, platform := range links.Platforms {
		out = append(out, p.sessions[platform]...)
	}
	return out
}

// Reset returns a session to StatusUnknown, making it a candidate again.
// It reports whether the session exists.
func (p *Pool) Reset(platform links.Platform, ordinal int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.sessions[platform]
	for i := range list {
		if list[i].Ordinal == ordinal {
			list[i].Status = StatusUnknown
			return true
		}
	}
	return false
}
