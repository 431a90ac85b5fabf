package chat

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/subculture-collective/reelrelay/relay"
	"github.com/subculture-collective/reelrelay/testutil"
)

const testToken = "123:abc"

func newTestBot(t *testing.T) (*Bot, *testutil.MockBotAPI) {
	t.Helper()
	api := testutil.NewMockBotAPI(t, testToken)
	b, err := New(testToken, Options{Endpoint: api.Endpoint(), PollTimeout: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, api
}

func TestNewRejectsBadToken(t *testing.T) {
	api := testutil.NewMockBotAPI(t, testToken)
	if _, err := New("999:wrong", Options{Endpoint: api.Endpoint()}); err == nil {
		t.Fatal("expected auth error")
	}
}

func TestOutboundCalls(t *testing.T) {
	b, api := newTestBot(t)
	if b.Username() != "relay_bot" {
		t.Errorf("username = %q", b.Username())
	}
	ctx := context.Background()

	video := filepath.Join(t.TempDir(), "media.mp4")
	if err := os.WriteFile(video, []byte("fake mp4"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := b.SendVideo(ctx, -100, relay.Payload{Path: video, Duration: 9}, "<b>cap</b>"); err != nil {
		t.Fatalf("SendVideo: %v", err)
	}
	if err := b.SendDocument(ctx, -200, "report.txt", []byte("log"), "summary"); err != nil {
		t.Fatalf("SendDocument: %v", err)
	}
	if err := b.SendText(ctx, -100, "oops", relay.TextOptions{ReplyTo: 5, Silent: true}); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := b.DeleteMessage(ctx, -100, 5); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}

	calls := api.Calls()
	if len(calls) != 4 {
		t.Fatalf("calls = %d, want 4", len(calls))
	}
	tests := []struct {
		method string
		field  string
		want   string
	}{
		{"sendVideo", "caption", "<b>cap</b>"},
		{"sendDocument", "chat_id", "-200"},
		{"sendMessage", "reply_to_message_id", "5"},
		{"deleteMessage", "message_id", "5"},
	}
	for i, tt := range tests {
		if calls[i].Method != tt.method {
			t.Errorf("call %d method = %s, want %s", i, calls[i].Method, tt.method)
			continue
		}
		if got := calls[i].Form.Get(tt.field); got != tt.want {
			t.Errorf("%s %s = %q, want %q", tt.method, tt.field, got, tt.want)
		}
	}
	if calls[0].Form.Get("parse_mode") != "HTML" || calls[0].Files["video"] == "" {
		t.Errorf("video call = %+v", calls[0])
	}
	if calls[1].Files["document"] != "report.txt" {
		t.Errorf("document file = %q", calls[1].Files["document"])
	}
	if calls[2].Form.Get("disable_notification") != "true" {
		t.Errorf("silent flag not sent: %v", calls[2].Form)
	}
}

func TestSendErrorsWrapped(t *testing.T) {
	b, api := newTestBot(t)
	api.FailMethod("sendMessage", "Bad Request: chat not found")
	err := b.SendText(context.Background(), -1, "x", relay.TextOptions{})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestCanceledContextSkipsCall(t *testing.T) {
	b, api := newTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.SendText(ctx, -1, "x", relay.TextOptions{}); err == nil {
		t.Fatal("expected context error")
	}
	if len(api.Calls()) != 0 {
		t.Error("call made with canceled context")
	}
}

func TestListen(t *testing.T) {
	b, api := newTestBot(t)
	api.QueueUpdate(-100, 77, 9, "bob", "https://youtube.com/shorts/abc")

	got := make(chan relay.Message, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Listen(ctx, func(m relay.Message) bool {
			got <- m
			return true
		})
	}()

	select {
	case m := <-got:
		if m.ChatID != -100 || m.MessageID != 77 || m.Text != "https://youtube.com/shorts/abc" {
			t.Errorf("message = %+v", m)
		}
		if m.Sender.ID != 9 || m.Sender.Username != "bob" || m.Sender.DisplayName != "Test User" {
			t.Errorf("sender = %+v", m.Sender)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Listen: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return")
	}
}
