// Package config loads environment variables and provides a typed Config used across the service.
// It applies defaults so only the bot token and the allowed chats are required.
// Retry and notice policy can additionally be overridden by a TOML file (see LoadPolicy).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/subculture-collective/reelrelay/credentials"
	"github.com/subculture-collective/reelrelay/links"
)

// Defaults.
const (
	DefaultCookiesDir       = "cookies"
	DefaultYtDlpPath        = "yt-dlp"
	DefaultAttemptTimeout   = 3 * time.Minute
	DefaultTransientRetries = 2
	DefaultTransientBackoff = 5 * time.Second
	DefaultMaxUploadBytes   = 49 << 20
	DefaultHTTPAddr         = ":8080"
	DefaultFailureNotice    = "Sorry, I couldn't download this video."
	DefaultNotFoundNotice   = "This post has no downloadable video."
	DefaultStartupNotice    = "The bot is back online."
	DefaultShutdownNotice   = "The bot is going down for maintenance."
)

var (
	ErrMissingToken = errors.New("missing BOT_TOKEN")
	ErrNoChats      = errors.New("missing ALLOWED_GROUP_IDS")
)

type Config struct {
	// Telegram
	BotToken       string
	AllowedChatIDs []int64
	AdminChatID    int64 // 0 disables failure reports

	// Notices
	NotificationsEnabled bool
	StartupNotice        string
	ShutdownNotice       string
	FailureNotice        string
	NotFoundNotice       string

	// Credentials
	CookiesDir     string
	CookiePrefixes map[links.Platform]string

	// Extraction
	YtDlpPath string
	YtDlpArgs []string
	TempDir   string
	UserAgent string

	// Policy
	AttemptTimeout   time.Duration
	TransientRetries int
	TransientBackoff time.Duration
	PolicyFile       string

	// Delivery
	MaxUploadBytes      int64
	DeleteSourceMessage bool

	// HTTP diagnostics; empty disables the server
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It does not check
// required fields; call Validate for that.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.BotToken = strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	ids, err := parseChatIDs(os.Getenv("ALLOWED_GROUP_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ALLOWED_GROUP_IDS: %w", err)
	}
	cfg.AllowedChatIDs = ids
	if v := strings.TrimSpace(os.Getenv("ADMIN_GROUP_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_GROUP_ID: %w", err)
		}
		cfg.AdminChatID = id
	}

	cfg.NotificationsEnabled = truthy(os.Getenv("NOTIFICATIONS_ENABLED"))
	cfg.StartupNotice = envOr("STARTUP_NOTICE", DefaultStartupNotice)
	cfg.ShutdownNotice = envOr("SHUTDOWN_NOTICE", DefaultShutdownNotice)
	cfg.FailureNotice = envOrEmpty("FAILURE_NOTICE", DefaultFailureNotice)
	cfg.NotFoundNotice = envOrEmpty("NOT_FOUND_NOTICE", DefaultNotFoundNotice)

	cfg.CookiesDir = envOr("COOKIES_DIR", DefaultCookiesDir)
	cfg.CookiePrefixes = map[links.Platform]string{}
	for platform, def := range credentials.DefaultPrefixes {
		cfg.CookiePrefixes[platform] = envOr("COOKIE_PREFIX_"+strings.ToUpper(string(platform)), def)
	}

	cfg.YtDlpPath = envOr("YTDLP_PATH", DefaultYtDlpPath)
	cfg.YtDlpArgs = strings.Fields(os.Getenv("YTDLP_ARGS"))
	cfg.TempDir = envOr("TEMP_DIR", filepath.Join(os.TempDir(), "reelrelay"))
	cfg.UserAgent = os.Getenv("YTDLP_USER_AGENT")

	if cfg.AttemptTimeout, err = envDuration("ATTEMPT_TIMEOUT", DefaultAttemptTimeout); err != nil {
		return nil, err
	}
	if cfg.TransientBackoff, err = envDuration("TRANSIENT_BACKOFF", DefaultTransientBackoff); err != nil {
		return nil, err
	}
	cfg.TransientRetries = DefaultTransientRetries
	if v := os.Getenv("TRANSIENT_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid TRANSIENT_RETRIES %q", v)
		}
		cfg.TransientRetries = n
	}

	cfg.MaxUploadBytes = DefaultMaxUploadBytes
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES %q", v)
		}
		cfg.MaxUploadBytes = n
	}
	cfg.DeleteSourceMessage = true
	if v := os.Getenv("DELETE_SOURCE_MESSAGE"); v != "" {
		cfg.DeleteSourceMessage = truthy(v)
	}

	cfg.HTTPAddr = envOr("HTTP_ADDR", DefaultHTTPAddr)
	if strings.EqualFold(cfg.HTTPAddr, "off") {
		cfg.HTTPAddr = ""
	}

	cfg.PolicyFile = os.Getenv("POLICY_FILE")
	if cfg.PolicyFile != "" {
		if err := cfg.LoadPolicy(cfg.PolicyFile); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Validate checks the fields required to run the relay.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return ErrMissingToken
	}
	if len(c.AllowedChatIDs) == 0 {
		return ErrNoChats
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt timeout must be positive, got %s", c.AttemptTimeout)
	}
	if c.TransientRetries < 0 {
		return fmt.Errorf("transient retries must be >= 0, got %d", c.TransientRetries)
	}
	return nil
}

// ReportsEnabled reports whether an operator chat is configured.
func (c *Config) ReportsEnabled() bool { return c.AdminChatID != 0 }

func parseChatIDs(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "yes", "true", "on", "enabled":
		return true
	}
	return false
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envOrEmpty is envOr but a variable set to the empty string wins over def.
func envOrEmpty(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return d, nil
}
