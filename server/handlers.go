package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/subculture-collective/reelrelay/credentials"
	"github.com/subculture-collective/reelrelay/links"
)

// QueueState is the part of the request queue the server reads.
type QueueState interface {
	Len() int
	Running() bool
}

// ExtractionState reports running extractions.
type ExtractionState interface {
	InFlight() int
}

// Deps are the live components the handlers inspect.
type Deps struct {
	Queue       QueueState
	Extractions ExtractionState
	Pool        *credentials.Pool
	StartedAt   time.Time
	// ReportsEnabled mirrors whether an operator chat is configured.
	ReportsEnabled bool
}

// Handlers serves the diagnostics routes.
type Handlers struct {
	deps Deps
}

// NewHandlers builds the handler set.
func NewHandlers(deps Deps) *Handlers {
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}
	return &Handlers{deps: deps}
}

type sessionStatus struct {
	Platform string `json:"platform"`
	Session  int    `json:"session"`
	File     string `json:"file"`
	Status   string `json:"status"`
}

type statusResponse struct {
	QueueDepth     int             `json:"queue_depth"`
	InFlight       int             `json:"in_flight"`
	WorkerRunning  bool            `json:"worker_running"`
	ReportsEnabled bool            `json:"reports_enabled"`
	Uptime         string          `json:"uptime"`
	Sessions       []sessionStatus `json:"sessions"`
}

// HandleStatus returns queue depth, in-flight extractions and session health.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := statusResponse{
		QueueDepth:     h.deps.Queue.Len(),
		InFlight:       h.deps.Extractions.InFlight(),
		WorkerRunning:  h.deps.Queue.Running(),
		ReportsEnabled: h.deps.ReportsEnabled,
		Uptime:         time.Since(h.deps.StartedAt).Round(time.Second).String(),
		Sessions:       []sessionStatus{},
	}
	for _, c := range h.deps.Pool.Snapshot() {
		resp.Sessions = append(resp.Sessions, sessionStatus{
			Platform: string(c.Platform),
			Session:  c.Ordinal,
			File:     c.File(),
			Status:   c.Status.String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleCredentialReset clears the in-memory status of one session, e.g. after
// an operator replaced its cookie file. Query: platform, session.
func (h *Handlers) HandleCredentialReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	platform := links.Platform(r.URL.Query().Get("platform"))
	if !platform.Valid() {
		http.Error(w, "unknown platform", http.StatusBadRequest)
		return
	}
	ordinal, err := strconv.Atoi(r.URL.Query().Get("session"))
	if err != nil || ordinal < 1 {
		http.Error(w, "invalid session", http.StatusBadRequest)
		return
	}
	prev, _ := h.deps.Pool.Status(platform, ordinal)
	if !h.deps.Pool.Reset(platform, ordinal) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	slog.Info("session status reset", slog.String("platform", string(platform)), slog.Int("session", ordinal), slog.String("previous", prev.String()), slog.String("component", "http"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "previous": prev.String()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
