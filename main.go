package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	s3store "liveworkshop/backend/internal/adapter/s3"
	"liveworkshop/backend/internal/app"
	"liveworkshop/backend/internal/config"
	"liveworkshop/backend/internal/ingest"
	"liveworkshop/backend/internal/logger"
)

func main() {
	// Initialize structured logger
	log := logger.New(os.Stdout, slog.LevelInfo)
	slog.SetDefault(log)

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	slog.SetDefault(log)

	// 2. Infrastructure
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.DB.Close()
	defer deps.NSQProducer.Stop()

	// 3. Adapters
	provider, err := app.NewEmbeddingProvider(ctx, cfg)
	if err != nil {
		return err
	}

	appDeps := app.Deps{
		DB:        deps.DB,
		Backend:   deps.Backend,
		Publisher: deps.NSQProducer,
		Provider:  provider,
	}
	if cfg.S3Bucket != "" {
		storage, err := s3store.New(ctx, ingest.NewFileArea(cfg.DataDir), s3store.Options{
			Bucket:         cfg.S3Bucket,
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			PresignTTL:     cfg.PresignTTL(),
			MaxObjectBytes: cfg.MaxUploadSizeMB << 20,
		})
		if err != nil {
			return err
		}
		appDeps.Storage = storage
		slog.Info("object storage enabled", "bucket", cfg.S3Bucket)
	}

	application, err := app.New(cfg, appDeps)
	if err != nil {
		return err
	}

	// 4. Worker (Index Consumer)
	if cfg.EnableIndexWorker {
		consumer, err := nsq.NewConsumer(config.TopicIngestIndex, "backend", nsq.NewConfig())
		if err != nil {
			slog.Error("failed to create NSQ consumer for index requests", "error", err)
		} else {
			consumer.AddHandler(application.IndexConsumer)
			if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
				slog.Error("failed to connect to NSQLookupd", "error", err)
			} else {
				slog.Info("NSQ Index Consumer connected")
			}
			defer consumer.Stop()
		}
	}

	// 5. Start Server
	return application.Run(ctx)
}
