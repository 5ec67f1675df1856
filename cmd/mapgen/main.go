// mapgen is the one-shot batch job that renders moderated reports onto a
// static map and publishes it to object storage.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"reportbot/config"
	"reportbot/internal/mapgen"
	"reportbot/internal/notion"
	"reportbot/internal/storage"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.CheckMapgen(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := newLogger(cfg.Bot.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to connect storage", zap.Error(err))
	}

	notionClient := notion.New(cfg.Notion.APIKey, cfg.Notion.PreferencesDB, logger)
	job := mapgen.NewJob(notionClient, store, cfg.Map.DatabaseID, cfg.Map.DetailsPageHost, cfg.Map.OutputKey, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := job.Run(ctx); err != nil {
		logger.Fatal("map generation failed", zap.Error(err))
	}
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
