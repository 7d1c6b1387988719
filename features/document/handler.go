package document

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"liveworkshop/backend/internal/ingest"
	"liveworkshop/backend/internal/middleware"
	"liveworkshop/backend/internal/vector"
)

// multipart overhead on top of the file itself
const formOverheadBytes = 1 << 20

type Handler struct {
	service        *Service
	maxUploadBytes int64
}

func NewHandler(service *Service, maxUploadBytes int64) *Handler {
	return &Handler{service: service, maxUploadBytes: maxUploadBytes}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.PathValue("id")

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+formOverheadBytes)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(ctx, w, "PAYLOAD_TOO_LARGE", "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(ctx, w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	res, err := h.service.Upload(ctx, sessionID, header.Filename, file)
	if err != nil {
		h.writeServiceError(ctx, w, "upload failed", err)
		return
	}

	h.writeJSON(ctx, w, http.StatusCreated, map[string]interface{}{"data": res})
}

func (h *Handler) Presign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		FileName string `json:"fileName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.FileName == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "fileName is required", http.StatusBadRequest)
		return
	}

	up, err := h.service.PresignUpload(ctx, r.PathValue("id"), req.FileName)
	if err != nil {
		h.writeServiceError(ctx, w, "presign failed", err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": up})
}

func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	opts := ProcessOptions{
		Index:           boolParam(q.Get("index")),
		Async:           boolParam(q.Get("async")),
		SyncFromStorage: boolParam(q.Get("sync")),
	}

	report, err := h.service.Process(ctx, r.PathValue("id"), opts)
	if err != nil {
		h.writeServiceError(ctx, w, "process failed", err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": report})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docs, err := h.service.List(ctx, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(ctx, w, "list documents failed", err)
		return
	}

	// Ensure we return [] instead of null for empty list
	if docs == nil {
		docs = []Document{}
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": docs,
		"meta": map[string]int{"count": len(docs)},
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := h.service.Get(ctx, r.PathValue("id"), r.PathValue("file"))
	if err != nil {
		h.writeServiceError(ctx, w, "get document failed", err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": doc})
}

func boolParam(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, ingest.ErrInvalidSessionID), errors.Is(err, ingest.ErrInvalidFileName), errors.Is(err, ErrUnsupportedType):
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
	case errors.Is(err, ingest.ErrUploadTooLarge):
		h.writeError(ctx, w, "PAYLOAD_TOO_LARGE", err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, ingest.ErrDocumentNotFound):
		h.writeError(ctx, w, "NOT_FOUND", "Document not found", http.StatusNotFound)
	case errors.Is(err, ErrIndexWorkerDisabled):
		h.writeError(ctx, w, "CONFLICT", err.Error(), http.StatusConflict)
	case errors.Is(err, ErrStorageDisabled):
		h.writeError(ctx, w, "NOT_IMPLEMENTED", err.Error(), http.StatusNotImplemented)
	case errors.Is(err, vector.ErrIndexUnavailable):
		slog.ErrorContext(ctx, msg, "error", err)
		h.writeError(ctx, w, "INDEX_UNAVAILABLE", err.Error(), http.StatusServiceUnavailable)
	default:
		slog.ErrorContext(ctx, msg, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
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
