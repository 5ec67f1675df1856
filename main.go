package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reportbot/config"
	"reportbot/internal/engine"
	"reportbot/internal/media"
	"reportbot/internal/notion"
	"reportbot/internal/ops"
	"reportbot/internal/phrases"
	"reportbot/internal/prefs"
	"reportbot/internal/record"
	"reportbot/internal/storage"
	"reportbot/internal/transport"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.CheckBot(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := newLogger(cfg.Bot.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	table, err := phrases.Load(cfg.Bot.PhrasesFile, cfg.Bot.DefaultLanguage)
	if err != nil {
		logger.Fatal("failed to load phrases", zap.Error(err))
	}

	languages := cfg.Bot.Languages
	if len(languages) == 0 {
		languages = table.Languages()
	}

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to connect storage", zap.Error(err))
	}

	notionClient := notion.New(cfg.Notion.APIKey, cfg.Notion.PreferencesDB, logger)
	relay := media.NewRelay(store, cfg.Bot.Thumbnails, logger)
	records := record.NewStore(record.NewBuilder(cfg.Notion.ActionDatabases), notionClient)
	cache := prefs.NewCache(notionClient, languages, logger)

	eng := engine.New(engine.Config{
		Languages:     languages,
		Actions:       cfg.Notion.Actions,
		MediaRequired: cfg.Bot.MediaRequired,
	}, table, relay, records, cache, logger)

	bot, err := transport.New(cfg.Telegram.Token, eng, logger)
	if err != nil {
		logger.Fatal("failed to connect telegram", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(ctx) })
	g.Go(func() error { return ops.Run(ctx, cfg.Ops.Addr, logger) })

	logger.Info("report bot started",
		zap.Strings("languages", languages),
		zap.Strings("actions", cfg.Notion.Actions),
		zap.Bool("media_required", cfg.Bot.MediaRequired))

	if err := g.Wait(); err != nil {
		logger.Fatal("exited with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}
