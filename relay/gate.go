package relay

import (
	"context"
	"log/slog"
)

// gate bounds how many extractions may run at once. The controller uses a
// capacity of one.
type gate struct {
	slots chan struct{}
}

func newGate(capacity int) *gate {
	if capacity <= 0 {
		capacity = 1
	}
	return &gate{slots: make(chan struct{}, capacity)}
}

// acquire blocks until a slot is free or ctx is done.
// Returns true if the slot was taken.
func (g *gate) acquire(ctx context.Context) bool {
	select {
	case g.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *gate) release() {
	select {
	case <-g.slots:
	default:
		slog.Warn("extraction slot release called without corresponding acquire", slog.String("component", "relay"))
	}
}

// active returns the number of extractions currently running.
func (g *gate) active() int { return len(g.slots) }
