package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
)

// Notifier announces startup and shutdown in every allowed chat.
type Notifier struct {
	messenger Messenger
	chats     []int64
	enabled   bool
	startup   string
	shutdown  string
}

// NewNotifier returns a notifier; when enabled is false every call is a no-op.
func NewNotifier(m Messenger, chats []int64, enabled bool, startup, shutdown string) *Notifier {
	return &Notifier{messenger: m, chats: chats, enabled: enabled, startup: startup, shutdown: shutdown}
}

// Startup posts the startup notice.
func (n *Notifier) Startup(ctx context.Context) error { return n.broadcast(ctx, n.startup) }

// Shutdown posts the shutdown notice.
func (n *Notifier) Shutdown(ctx context.Context) error { return n.broadcast(ctx, n.shutdown) }

func (n *Notifier) broadcast(ctx context.Context, text string) error {
	if !n.enabled || text == "" {
		return nil
	}
	var result *multierror.Error
	sent := 0
	for _, chat := range n.chats {
		if err := n.messenger.SendText(ctx, chat, text, TextOptions{Silent: true}); err != nil {
			result = multierror.Append(result, fmt.Errorf("chat %d: %w", chat, err))
			continue
		}
		sent++
	}
	slog.Info("notice broadcast", slog.Int("sent", sent), slog.Int("chats", len(n.chats)), slog.String("component", "relay_notifier"))
	return result.ErrorOrNil()
}
