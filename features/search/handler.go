package search

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"liveworkshop/backend/internal/ingest"
	"liveworkshop/backend/internal/middleware"
	"liveworkshop/backend/internal/retrieval"
)

type Retriever interface {
	GetRelevantContext(ctx context.Context, topic, sessionID string, maxContexts int) []string
	Search(ctx context.Context, query, sessionID string, limit int) ([]retrieval.Snippet, error)
}

type Handler struct {
	retriever Retriever
}

func NewHandler(r Retriever) *Handler {
	return &Handler{retriever: r}
}

type contextRequest struct {
	Topic       string `json:"topic"`
	MaxContexts int    `json:"maxContexts"`
}

// Context returns labeled snippets for a topic. An empty list is not an
// error; fallback tells the caller to use a topic-only prompt.
func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.PathValue("id")
	if err := ingest.ValidateSessionID(sessionID); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "topic is required", http.StatusBadRequest)
		return
	}

	contexts := h.retriever.GetRelevantContext(ctx, req.Topic, sessionID, retrieval.ClampLimit(req.MaxContexts))
	if contexts == nil {
		contexts = []string{}
	}

	h.writeJSON(ctx, w, map[string]interface{}{
		"data": map[string]interface{}{
			"contexts": contexts,
			"fallback": len(contexts) == 0,
		},
	})
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.PathValue("id")
	if err := ingest.ValidateSessionID(sessionID); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	results, err := h.retriever.Search(ctx, req.Query, sessionID, retrieval.ClampLimit(req.Limit))
	if err != nil {
		if errors.Is(err, retrieval.ErrEmptyQuery) {
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "search failed", "session_id", sessionID, "error", err)
		h.writeError(ctx, w, "RETRIEVAL_FAILED", err.Error(), http.StatusBadGateway)
		return
	}

	h.writeJSON(ctx, w, map[string]interface{}{
		"data": results,
		"meta": map[string]int{"count": len(results)},
	})
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
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
		slog.Error("failed to encode error response", "error", err)
	}
}
