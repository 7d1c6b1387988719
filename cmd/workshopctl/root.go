package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"liveworkshop/backend/internal/adapter/memory"
	wstore "liveworkshop/backend/internal/adapter/weaviate"
	"liveworkshop/backend/internal/app"
	"liveworkshop/backend/internal/config"
	"liveworkshop/backend/internal/logger"
	"liveworkshop/backend/internal/retrieval"
	"liveworkshop/backend/internal/vector"
)

var (
	useMemory bool
	dataDir   string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "workshopctl",
	Short: "Ingest session files and query session context",
	Long: `workshopctl runs the ingestion and retrieval engine directly.
Configuration is read from the environment and .env, like the server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelInfo
		}
		slog.SetDefault(logger.New(os.Stderr, level))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&useMemory, "memory", false, "use an in-process vector index instead of Weaviate")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override DATA_DIR")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")
}

// newEngine builds the engine for a command. Tests replace it.
var newEngine = func(ctx context.Context) (*app.Engine, error) {
	cfg, err := config.LoadEngine()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	var backend vector.Backend
	if useMemory {
		backend = memory.NewBackend()
	} else {
		client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, fmt.Errorf("weaviate client: %w", err)
		}
		backend = wstore.NewBackend(client)
	}

	provider, err := app.NewEmbeddingProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return app.NewEngine(cfg, backend, provider, retrieval.NewQueryLogger(os.Stderr)), nil
}
