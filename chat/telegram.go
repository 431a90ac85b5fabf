package chat

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/subculture-collective/reelrelay/relay"
)

// Options tune the Bot API client.
type Options struct {
	// Endpoint is the Bot API URL template with two %s verbs (token, method).
	Endpoint string
	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int
	HTTPClient  *http.Client
}

// Bot is the Telegram transport.
type Bot struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
	logger      *slog.Logger
}

// newHTTPClient returns a client sized for 50 MB uploads and long polling.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// New authenticates token against the Bot API (getMe).
func New(token string, opts Options) (*Bot, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = tgbotapi.APIEndpoint
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 50
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = newHTTPClient()
	}
	logger := slog.Default().With(slog.String("component", "chat_telegram"))
	_ = tgbotapi.SetLogger(botLogger{logger})

	api, err := tgbotapi.NewBotAPIWithClient(token, opts.Endpoint, opts.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	logger.Info("telegram bot authorized", slog.String("username", api.Self.UserName), slog.Int64("bot_id", api.Self.ID))
	return &Bot{api: api, pollTimeout: opts.PollTimeout, logger: logger}, nil
}

// Username of the authenticated bot.
func (b *Bot) Username() string { return b.api.Self.UserName }

// Listen polls updates until ctx is done, calling handle for each message.
func (b *Bot) Listen(ctx context.Context, handle func(relay.Message) bool) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	u.AllowedUpdates = []string{"message"}
	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("listening for messages")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("listener stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			msg, ok := toMessage(upd)
			if !ok {
				continue
			}
			handle(msg)
		}
	}
}

// toMessage converts an update into the relay's view of a message.
func toMessage(upd tgbotapi.Update) (relay.Message, bool) {
	m := upd.Message
	if m == nil || m.Chat == nil {
		return relay.Message{}, false
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	out := relay.Message{ChatID: m.Chat.ID, MessageID: m.MessageID, Text: text}
	switch {
	case m.From != nil:
		out.Sender = relay.Sender{
			ID:          m.From.ID,
			Username:    m.From.UserName,
			DisplayName: strings.TrimSpace(m.From.FirstName + " " + m.From.LastName),
		}
	case m.SenderChat != nil:
		out.Sender = relay.Sender{Username: m.SenderChat.UserName, DisplayName: m.SenderChat.Title}
	}
	return out, true
}

// SendVideo uploads the payload file as a streamable video.
func (b *Bot) SendVideo(ctx context.Context, chatID int64, media relay.Payload, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(media.Path))
	v.Caption = caption
	v.ParseMode = tgbotapi.ModeHTML
	v.SupportsStreaming = true
	v.Duration = media.Duration
	if _, err := b.api.Send(v); err != nil {
		return fmt.Errorf("sendVideo: %w", err)
	}
	return nil
}

// SendDocument uploads data as a file named name.
func (b *Bot) SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	d.Caption = caption
	d.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(d); err != nil {
		return fmt.Errorf("sendDocument: %w", err)
	}
	return nil
}

// SendText posts a plain text message.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string, opts relay.TextOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := tgbotapi.NewMessage(chatID, text)
	m.ReplyToMessageID = opts.ReplyTo
	m.DisableNotification = opts.Silent
	m.DisableWebPagePreview = true
	if _, err := b.api.Send(m); err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	return nil
}

// DeleteMessage removes a message the bot is allowed to delete.
func (b *Bot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("deleteMessage: %w", err)
	}
	return nil
}

// botLogger routes the library's internal logging to slog.
type botLogger struct{ l *slog.Logger }

func (b botLogger) Println(v ...interface{}) {
	b.l.Warn(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (b botLogger) Printf(format string, v ...interface{}) {
	b.l.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
