// Command reelrelay is a Telegram group bot that relays short-form videos.
// It:
//   - Loads configuration and initializes structured logging.
//   - Discovers cookie sessions per platform.
//   - Listens for messages in allowed chats and queues supported links.
//   - Downloads one request at a time through yt-dlp, rotating sessions on
//     rate limits and invalid cookies, and posts the video back with attribution.
//   - Sends failure reports to the operator chat.
//   - Exposes /healthz, /readyz, /status and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM: the request in progress finishes and
// anything still queued is reported.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/subculture-collective/reelrelay/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "reelrelay",
	Short: "Relay Instagram, TikTok and YouTube Shorts videos into Telegram chats",
	Long: `reelrelay watches allowed Telegram chats for short-form video links,
downloads them with yt-dlp using rotating cookie sessions and posts the video
back with attribution. Run without a subcommand to start the bot.`,
	Args:              cobra.NoArgs,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              serveRun,
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads .env (local dev convenience only), sets up logging and
// loads the environment configuration.
func loadConfig(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()
	setupLogging()

	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return nil
}

// setupLogging configures the default slog logger from LOG_LEVEL and
// LOG_FORMAT. Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print the version",
	Args:              cobra.NoArgs,
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "reelrelay", Version)
	},
}
