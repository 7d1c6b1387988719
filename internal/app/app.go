package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"liveworkshop/backend/features/document"
	"liveworkshop/backend/features/job"
	"liveworkshop/backend/features/mcp"
	"liveworkshop/backend/features/search"
	"liveworkshop/backend/features/stats"
	"liveworkshop/backend/internal/config"
	"liveworkshop/backend/internal/embedding"
	"liveworkshop/backend/internal/middleware"
	"liveworkshop/backend/internal/retrieval"
	"liveworkshop/backend/internal/vector"
	"liveworkshop/backend/internal/worker"
)

// Deps are the external resources App is built from. Storage is optional.
type Deps struct {
	DB        *sql.DB
	Backend   vector.Backend
	Publisher worker.TaskPublisher
	Provider  embedding.Provider
	Storage   document.ObjectStore
}

type App struct {
	Handler         http.Handler
	Engine          *Engine
	DocumentService *document.Service
	IndexConsumer   *worker.IndexConsumer
	port            int
}

func New(cfg *config.Config, deps Deps) (*App, error) {
	if deps.DB == nil || deps.Backend == nil || deps.Provider == nil || deps.Publisher == nil {
		return nil, errors.New("app: missing dependency")
	}

	// Feature: Retrieval
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	engine := NewEngine(cfg, deps.Backend, deps.Provider, queryLogger)
	events := worker.NewEventPublisher(deps.Publisher)

	// Feature: Document
	docRepo := document.NewPostgresRepo(deps.DB)
	jobRepo := job.NewPostgresRepo(deps.DB)

	docService := document.NewService(document.Deps{
		Area:           engine.Area,
		Processor:      engine.Orchestrator,
		Manifests:      engine.Manifests,
		Indexer:        engine.Indexer,
		Repo:           docRepo,
		Events:         events,
		Storage:        deps.Storage,
		IndexWorker:    cfg.EnableIndexWorker,
		MaxUploadBytes: cfg.MaxUploadSizeMB << 20,
	})

	// Feature: Job
	jobService := job.NewService(jobRepo, engine.Orchestrator, docService)
	docService.SetFailureRecorder(jobService)

	docHandler := document.NewHandler(docService, cfg.MaxUploadSizeMB<<20)
	jobHandler := job.NewHandler(jobService)
	searchHandler := search.NewHandler(engine.Retrieval)
	statsHandler := stats.NewHandler(docService, jobService)
	mcpHandler := mcp.NewHandler(engine.Retrieval, docService)

	// Routes
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions/{id}/files", docHandler.Upload)
	mux.HandleFunc("POST /sessions/{id}/uploads/presign", docHandler.Presign)
	mux.HandleFunc("POST /sessions/{id}/process", docHandler.Process)
	mux.HandleFunc("GET /sessions/{id}/documents", docHandler.List)
	mux.HandleFunc("GET /sessions/{id}/documents/{file}", docHandler.Get)
	mux.HandleFunc("GET /sessions/{id}/stats", statsHandler.GetStats)

	mux.HandleFunc("POST /sessions/{id}/context", searchHandler.Context)
	mux.HandleFunc("POST /sessions/{id}/search", searchHandler.Search)

	// Tool access for the script generation agent
	mux.Handle("POST /mcp", mcpHandler)
	mux.HandleFunc("GET /mcp/sse", mcpHandler.HandleSSE)
	mux.HandleFunc("POST /mcp/messages", mcpHandler.HandleMessage)

	mux.HandleFunc("GET /jobs/failed", jobHandler.List)
	mux.HandleFunc("POST /jobs/{id}/retry", jobHandler.Retry)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	indexConsumer := worker.NewIndexConsumer(engine.Manifests, engine.Indexer, events)
	indexConsumer.SetIndexMarker(docRepo)

	return &App{
		Handler:         middleware.CorrelationID(middleware.CORS(mux)),
		Engine:          engine,
		DocumentService: docService,
		IndexConsumer:   indexConsumer,
		port:            cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
