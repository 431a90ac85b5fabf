package relay

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
)

// Messenger is the outbound side of the chat transport.
type Messenger interface {
	SendVideo(ctx context.Context, chatID int64, media Payload, caption string) error
	SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error
	SendText(ctx context.Context, chatID int64, text string, opts TextOptions) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// TextOptions tune a plain text message.
type TextOptions struct {
	ReplyTo int
	Silent  bool
}

// ErrTooLarge is returned when a payload exceeds the upload limit.
var ErrTooLarge = errors.New("payload exceeds upload limit")

// DefaultMaxUploadBytes is the bot upload ceiling with a little headroom.
const DefaultMaxUploadBytes int64 = 49 << 20

// Delivery posts downloaded media back to the requesting chat.
type Delivery struct {
	messenger    Messenger
	maxBytes     int64
	deleteSource bool
	logger       *slog.Logger
}

// NewDelivery builds a Delivery. maxBytes <= 0 uses DefaultMaxUploadBytes.
func NewDelivery(m Messenger, maxBytes int64, deleteSource bool) *Delivery {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Delivery{
		messenger:    m,
		maxBytes:     maxBytes,
		deleteSource: deleteSource,
		logger:       slog.Default().With(slog.String("component", "relay_delivery")),
	}
}

// Deliver sends p to the chat of req with attribution. The triggering message
// is removed afterwards when configured; failing to remove it is not an error.
func (d *Delivery) Deliver(ctx context.Context, req DownloadRequest, p Payload) error {
	if p.Size > d.maxBytes {
		return fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, p.Size, d.maxBytes)
	}
	if err := d.messenger.SendVideo(ctx, req.ChatID, p, Caption(req)); err != nil {
		return fmt.Errorf("send video: %w", err)
	}
	d.logger.Info("video delivered",
		slog.String("request_id", req.ID),
		slog.Int64("chat_id", req.ChatID),
		slog.Int64("bytes", p.Size))
	if d.deleteSource {
		if err := d.messenger.DeleteMessage(ctx, req.ChatID, req.MessageID); err != nil {
			d.logger.Warn("could not delete source message",
				slog.String("request_id", req.ID),
				slog.Int("message_id", req.MessageID),
				slog.Any("err", err))
		}
	}
	return nil
}

// Caption renders the sender mention followed by the link as chat HTML.
func Caption(req DownloadRequest) string {
	return fmt.Sprintf("%s — %s", Mention(req.Sender), linkHTML(req.URL, req.URL))
}

// Mention renders a clickable reference to the sender.
func Mention(s Sender) string {
	name := html.EscapeString(s.Name())
	if s.ID == 0 {
		return name
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, s.ID, name)
}

func linkHTML(href, text string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), html.EscapeString(text))
}
