package app

import (
	"context"
	"fmt"

	"liveworkshop/backend/internal/adapter/gemini"
	"liveworkshop/backend/internal/adapter/openai"
	"liveworkshop/backend/internal/config"
	"liveworkshop/backend/internal/embedding"
	"liveworkshop/backend/internal/ingest"
	"liveworkshop/backend/internal/parser"
	"liveworkshop/backend/internal/retrieval"
	"liveworkshop/backend/internal/vector"
)

// Engine is the ingestion and retrieval core shared by the server and the
// command line tool.
type Engine struct {
	Area         *ingest.FileArea
	Manifests    *ingest.FileManifestStore
	Orchestrator *ingest.Orchestrator
	Embedder     *embedding.BatchEmbedder
	Index        *vector.Handle
	Indexer      *ingest.Indexer
	Retrieval    *retrieval.Service
}

func NewEngine(cfg *config.Config, backend vector.Backend, provider embedding.Provider, queryLog *retrieval.QueryLogger) *Engine {
	area := ingest.NewFileArea(cfg.DataDir)
	manifests := ingest.NewFileManifestStore(area)
	orch := ingest.NewOrchestrator(parser.New(parser.NewPDFExtractor()), area, manifests, ingest.Options{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})

	embedder := embedding.New(provider, embedding.Options{
		MaxBatchSize: cfg.EmbedBatchSize,
		BatchDelay:   cfg.EmbedBatchDelay(),
		Dimension:    cfg.EmbeddingDimension,
	})
	index := vector.NewClient(backend, vectorOptions(cfg)).Handle(IndexSpec(cfg))

	return &Engine{
		Area:         area,
		Manifests:    manifests,
		Orchestrator: orch,
		Embedder:     embedder,
		Index:        index,
		Indexer:      ingest.NewIndexer(embedder, index),
		Retrieval: retrieval.NewService(embedder, index, queryLog, retrieval.Options{
			Threshold:          cfg.SimilarityThreshold,
			DefaultMaxContexts: cfg.DefaultMaxContexts,
		}),
	}
}

func IndexSpec(cfg *config.Config) vector.IndexSpec {
	return vector.IndexSpec{
		Name:      cfg.IndexName,
		Dimension: cfg.EmbeddingDimension,
		Metric:    "cosine",
	}
}

func vectorOptions(cfg *config.Config) vector.Options {
	return vector.Options{
		QueryTimeout:     cfg.QueryTimeout(),
		QueryMaxAttempts: cfg.QueryMaxAttempts,
		ReadyTimeout:     cfg.IndexReadyTimeout(),
	}
}

// NewEmbeddingProvider builds the provider selected by EMBEDDING_PROVIDER.
func NewEmbeddingProvider(ctx context.Context, cfg *config.Config) (embedding.Provider, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderGemini:
		return gemini.NewProvider(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	case config.ProviderOpenAI:
		return openai.NewProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDimension)
	default:
		return nil, fmt.Errorf("%w: EMBEDDING_PROVIDER %q", config.ErrInvalid, cfg.EmbeddingProvider)
	}
}
