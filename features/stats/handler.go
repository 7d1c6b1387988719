package stats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"liveworkshop/backend/features/document"
	"liveworkshop/backend/features/job"
	"liveworkshop/backend/internal/ingest"
	"liveworkshop/backend/internal/middleware"
)

type DocumentLister interface {
	List(ctx context.Context, sessionID string) ([]document.Document, error)
}

type JobLister interface {
	List(ctx context.Context, sessionID string) ([]job.Job, error)
}

type Handler struct {
	documents DocumentLister
	jobs      JobLister
}

func NewHandler(d DocumentLister, j JobLister) *Handler {
	return &Handler{documents: d, jobs: j}
}

type StatsResponse struct {
	SessionID        string `json:"session_id"`
	Documents        int    `json:"documents"`
	IndexedDocuments int    `json:"indexed_documents"`
	DegradedFiles    int    `json:"degraded_files"`
	Chunks           int    `json:"chunks"`
	IndexedChunks    int    `json:"indexed_chunks"`
	FailedJobs       int    `json:"failed_jobs"`
}

// GetStats summarizes a session's ingestion state from the document
// registry and the failed-job table.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.PathValue("id")

	slog.InfoContext(ctx, "getting stats", "session_id", sessionID)

	docs, err := h.documents.List(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidSessionID) {
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "failed to list documents", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to list documents", http.StatusInternalServerError)
		return
	}

	jobs, err := h.jobs.List(ctx, sessionID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list failed jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count failed jobs", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{SessionID: sessionID, Documents: len(docs), FailedJobs: len(jobs)}
	for _, d := range docs {
		resp.Chunks += d.TotalChunks
		if d.Degraded {
			resp.DegradedFiles++
		}
		if d.IndexedAt != nil {
			resp.IndexedDocuments++
			resp.IndexedChunks += d.TotalChunks
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode error response", "error", err)
	}
}
