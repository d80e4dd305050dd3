package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/snowball-voice/snowball/internal/api"
	"github.com/snowball-voice/snowball/internal/config"
	"github.com/snowball-voice/snowball/internal/conversation"
	"github.com/snowball-voice/snowball/internal/database"
	"github.com/snowball-voice/snowball/internal/events"
	"github.com/snowball-voice/snowball/internal/llm"
	"github.com/snowball-voice/snowball/internal/orchestrator"
	"github.com/snowball-voice/snowball/internal/quota"
	iredis "github.com/snowball-voice/snowball/internal/redis"
	"github.com/snowball-voice/snowball/internal/server"
	"github.com/snowball-voice/snowball/internal/turn"
	"github.com/snowball-voice/snowball/internal/voice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
		slog.Error("migrating database", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS audit stream is optional; the assistant runs fine without it.
	var eventsClient *events.Client
	var audit *events.Publisher
	if cfg.NATS.URL != "" {
		eventsClient, err = events.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer eventsClient.Close()
		audit = events.NewPublisher(eventsClient.JetStream())
	}

	// Quota
	quotaStore := quota.NewPostgresStore(pool)
	quotaManager := quota.NewManager(quotaStore, cfg.Quota)
	quotaHandler := quota.NewHandler(quotaManager)

	// Model access
	transport := llm.NewClient(cfg.OpenAI)
	orch := orchestrator.New(transport, cfg.OpenAI)

	// Conversation
	buffer := conversation.NewBuffer(orch, cfg.Conversation)
	sessions := conversation.NewSessionStore(redisClient, cfg.Redis.SessionTTL)

	// Turn pipeline and voice surface
	turns := turn.NewHandler(quotaManager, buffer, orch, audit)
	voiceHandler := voice.NewHandler(turns, sessions, quotaManager, audit)

	// Router
	router := api.NewRouter(pool, redisClient, eventsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
	}, api.HandlerSet{
		Webhook:        voiceHandler.Webhook,
		GetQuotaStatus: quotaHandler.GetStatus,
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
