package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/subculture-collective/reelrelay/links"
)

var relayEnv = []string{
	"BOT_TOKEN", "ALLOWED_GROUP_IDS", "ADMIN_GROUP_ID", "NOTIFICATIONS_ENABLED",
	"STARTUP_NOTICE", "SHUTDOWN_NOTICE", "FAILURE_NOTICE", "NOT_FOUND_NOTICE",
	"COOKIES_DIR", "COOKIE_PREFIX_INSTAGRAM", "COOKIE_PREFIX_TIKTOK", "COOKIE_PREFIX_YOUTUBE_SHORTS",
	"YTDLP_PATH", "YTDLP_ARGS", "TEMP_DIR", "YTDLP_USER_AGENT",
	"ATTEMPT_TIMEOUT", "TRANSIENT_RETRIES", "TRANSIENT_BACKOFF", "POLICY_FILE",
	"MAX_UPLOAD_BYTES", "DELETE_SOURCE_MESSAGE", "HTTP_ADDR",
}

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range relayEnv {
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatalf("unset %s: %v", k, err)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.CookiesDir != DefaultCookiesDir || cfg.YtDlpPath != DefaultYtDlpPath {
		t.Errorf("unexpected paths: %q %q", cfg.CookiesDir, cfg.YtDlpPath)
	}
	if cfg.AttemptTimeout != DefaultAttemptTimeout || cfg.TransientRetries != DefaultTransientRetries || cfg.TransientBackoff != DefaultTransientBackoff {
		t.Errorf("unexpected policy: %s %d %s", cfg.AttemptTimeout, cfg.TransientRetries, cfg.TransientBackoff)
	}
	if cfg.MaxUploadBytes != DefaultMaxUploadBytes || !cfg.DeleteSourceMessage {
		t.Errorf("unexpected delivery settings: %d %v", cfg.MaxUploadBytes, cfg.DeleteSourceMessage)
	}
	if cfg.FailureNotice != DefaultFailureNotice || cfg.NotificationsEnabled || cfg.ReportsEnabled() {
		t.Errorf("unexpected notice settings: %+v", cfg)
	}
	if cfg.CookiePrefixes[links.TikTok] != "cookie_tiktok" {
		t.Errorf("tiktok prefix = %q", cfg.CookiePrefixes[links.TikTok])
	}
	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("http addr = %q", cfg.HTTPAddr)
	}
	if !errors.Is(cfg.Validate(), ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", cfg.Validate())
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ALLOWED_GROUP_IDS", " -1001, -1002 ,")
	t.Setenv("ADMIN_GROUP_ID", "-42")
	t.Setenv("NOTIFICATIONS_ENABLED", "Enabled")
	t.Setenv("FAILURE_NOTICE", "")
	t.Setenv("TRANSIENT_RETRIES", "0")
	t.Setenv("TRANSIENT_BACKOFF", "250ms")
	t.Setenv("DELETE_SOURCE_MESSAGE", "no")
	t.Setenv("HTTP_ADDR", "off")
	t.Setenv("YTDLP_ARGS", "--proxy socks5://h:1")
	t.Setenv("COOKIE_PREFIX_INSTAGRAM", "ig")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if !reflect.DeepEqual(cfg.AllowedChatIDs, []int64{-1001, -1002}) {
		t.Errorf("chats = %v", cfg.AllowedChatIDs)
	}
	if cfg.AdminChatID != -42 || !cfg.ReportsEnabled() {
		t.Errorf("admin chat = %d", cfg.AdminChatID)
	}
	if !cfg.NotificationsEnabled {
		t.Error("notifications should be enabled")
	}
	if cfg.FailureNotice != "" {
		t.Errorf("empty FAILURE_NOTICE should disable the notice, got %q", cfg.FailureNotice)
	}
	if cfg.TransientRetries != 0 || cfg.TransientBackoff != 250*time.Millisecond {
		t.Errorf("policy = %d %s", cfg.TransientRetries, cfg.TransientBackoff)
	}
	if cfg.DeleteSourceMessage || cfg.HTTPAddr != "" {
		t.Errorf("delete=%v addr=%q", cfg.DeleteSourceMessage, cfg.HTTPAddr)
	}
	if len(cfg.YtDlpArgs) != 2 || cfg.CookiePrefixes[links.Instagram] != "ig" {
		t.Errorf("args=%v prefixes=%v", cfg.YtDlpArgs, cfg.CookiePrefixes)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"ALLOWED_GROUP_IDS", "-1,abc"},
		{"ADMIN_GROUP_ID", "admins"},
		{"ATTEMPT_TIMEOUT", "soon"},
		{"TRANSIENT_RETRIES", "-1"},
		{"MAX_UPLOAD_BYTES", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestValidateRequiresChats(t *testing.T) {
	cfg := &Config{BotToken: "t", AttemptTimeout: time.Second}
	if !errors.Is(cfg.Validate(), ErrNoChats) {
		t.Errorf("expected ErrNoChats, got %v", cfg.Validate())
	}
}

func TestLoadPolicyFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "policy.toml")
	body := `
[retry]
transient_retries = 4
transient_backoff = "2s"
attempt_timeout = "90s"

[notices]
failure = ""
not_found = "No video there."

[delivery]
delete_source_message = false
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("POLICY_FILE", path)
	t.Setenv("TRANSIENT_RETRIES", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.TransientRetries != 4 || cfg.TransientBackoff != 2*time.Second || cfg.AttemptTimeout != 90*time.Second {
		t.Errorf("policy = %d %s %s", cfg.TransientRetries, cfg.TransientBackoff, cfg.AttemptTimeout)
	}
	if cfg.FailureNotice != "" || cfg.NotFoundNotice != "No video there." {
		t.Errorf("notices = %q %q", cfg.FailureNotice, cfg.NotFoundNotice)
	}
	if cfg.DeleteSourceMessage {
		t.Error("delete_source_message should be off")
	}
	if cfg.StartupNotice != DefaultStartupNotice {
		t.Errorf("startup notice changed: %q", cfg.StartupNotice)
	}
}

func TestLoadPolicyRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.toml")
	if err := os.WriteFile(path, []byte("[retry]\nretries = 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := &Config{}
	if err := cfg.LoadPolicy(path); err == nil {
		t.Fatal("expected unknown key error")
	}
}
