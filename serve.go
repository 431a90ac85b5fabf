package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/subculture-collective/reelrelay/chat"
	"github.com/subculture-collective/reelrelay/credentials"
	"github.com/subculture-collective/reelrelay/links"
	"github.com/subculture-collective/reelrelay/relay"
	"github.com/subculture-collective/reelrelay/server"
	"github.com/subculture-collective/reelrelay/telemetry"
	"github.com/subculture-collective/reelrelay/ytdlp"
)

// discoverPool scans the cookies directory and publishes the per-platform
// session counts.
func discoverPool() (*credentials.Pool, error) {
	pool, err := credentials.Discover(cfg.CookiesDir, cfg.CookiePrefixes)
	if err != nil {
		return nil, fmt.Errorf("discovering cookie sessions: %w", err)
	}
	for _, p := range links.Platforms {
		telemetry.SetCredentialsConfigured(string(p), pool.Count(p))
	}
	return pool, nil
}

func newController(pool *credentials.Pool) *relay.Controller {
	extractor := ytdlp.New(ytdlp.Options{
		Binary:    cfg.YtDlpPath,
		TempDir:   cfg.TempDir,
		UserAgent: cfg.UserAgent,
		ExtraArgs: cfg.YtDlpArgs,
	})
	return relay.NewController(pool, extractor, relay.Policy{
		TransientRetries: cfg.TransientRetries,
		TransientBackoff: cfg.TransientBackoff,
		AttemptTimeout:   cfg.AttemptTimeout,
	})
}

func serveRun(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("reelrelay", Version)
	if err != nil {
		return fmt.Errorf("tracing initialization failed: %w", err)
	}
	defer shutdownTracing()

	pool, err := discoverPool()
	if err != nil {
		return err
	}
	controller := newController(pool)

	bot, err := chat.New(cfg.BotToken, chat.Options{})
	if err != nil {
		return err
	}
	slog.Info("connected to telegram", slog.String("bot", bot.Username()), slog.Int("allowed_chats", len(cfg.AllowedChatIDs)), slog.Bool("reports", cfg.ReportsEnabled()))

	reporter := relay.NewReporter(bot, cfg.AdminChatID)
	if !reporter.Enabled() {
		slog.Warn("ADMIN_GROUP_ID not set, failure reports disabled")
	}
	handler := relay.New(controller, relay.NewDelivery(bot, cfg.MaxUploadBytes, cfg.DeleteSourceMessage), reporter, bot, relay.Notices{
		Failure:  cfg.FailureNotice,
		NotFound: cfg.NotFoundNotice,
	})
	queue := relay.NewQueue(handler)
	dispatcher := relay.NewDispatcher(cfg.AllowedChatIDs, queue)
	notifier := relay.NewNotifier(bot, cfg.AllowedChatIDs, cfg.NotificationsEnabled, cfg.StartupNotice, cfg.ShutdownNotice)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return queue.Run(gctx) })
	g.Go(func() error { return bot.Listen(gctx, dispatcher.HandleMessage) })
	if cfg.HTTPAddr != "" {
		deps := server.Deps{
			Queue:          queue,
			Extractions:    controller,
			Pool:           pool,
			StartedAt:      time.Now(),
			ReportsEnabled: reporter.Enabled(),
		}
		g.Go(func() error { return server.Start(gctx, deps, cfg.HTTPAddr) })
	} else {
		slog.Info("http server disabled")
	}

	if err := notifier.Startup(ctx); err != nil {
		slog.Warn("startup notice incomplete", slog.Any("err", err))
	}

	<-gctx.Done()
	slog.Info("shutting down", slog.Int("pending", queue.Len()))
	noticeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := notifier.Shutdown(noticeCtx); err != nil {
		slog.Warn("shutdown notice incomplete", slog.Any("err", err))
	}

	err = g.Wait()
	slog.Info("stopped")
	return err
}
