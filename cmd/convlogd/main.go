package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/convlog/internal/config"
	"github.com/gosuda/convlog/internal/notify"
	"github.com/gosuda/convlog/internal/retention"
	"github.com/gosuda/convlog/internal/server"
	"github.com/gosuda/convlog/internal/store"
	redisstore "github.com/gosuda/convlog/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("CONVLOG_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("CONVLOG_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Open the conversation store; backend selected from the URL scheme.
	st, err := store.Open(ctx, cfg.Store.URL, cfg.Store.AuthToken, int32(cfg.Store.MaxConns)) //nolint:gosec // bounds checked in config
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	// Create the conversations schema before serving any request.
	if err = st.Init(ctx); err != nil {
		return err
	}
	log.Info().Str("url", cfg.Store.RedactedURL()).Msg("conversation store ready")

	// Connect to Redis when live tailing is enabled.
	var pubsub *redisstore.PubSub
	if cfg.Redis.Addr != "" {
		pubsub, err = redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer func() { _ = pubsub.Close() }()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("live tail enabled")
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start the retention sweeper when a TTL is configured.
	if cfg.Retention.TTL > 0 {
		var notifier notify.Notifier = notify.LogNotifier{}
		if cfg.Slack.BotToken != "" {
			notifier = notify.NewSlackNotifier(slacklib.New(cfg.Slack.BotToken), cfg.Slack.Channel)
			log.Info().Str("channel", cfg.Slack.Channel).Msg("Slack sweep reports enabled")
		}

		sweeper := retention.NewSweeper(st.Conversations(), notifier, cfg.Retention.TTL, cfg.Retention.Interval)
		go sweeper.Run(ctx)
		log.Info().Dur("ttl", cfg.Retention.TTL).Dur("interval", cfg.Retention.Interval).Msg("retention sweeper started")
	}

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, st, pubsub)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}
