package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"liveworkshop/backend/internal/ingest"
	"liveworkshop/backend/internal/middleware"
)

const defaultIndexTimeout = 10 * time.Minute

// IndexConsumer handles ingest.index messages by indexing the session's
// stored manifests. Returning an error makes NSQ requeue the message.
type IndexConsumer struct {
	manifests ManifestLister
	indexer   DocumentIndexer
	events    *EventPublisher
	marker    IndexMarker
	timeout   time.Duration
}

func NewIndexConsumer(m ManifestLister, idx DocumentIndexer, events *EventPublisher) *IndexConsumer {
	return &IndexConsumer{manifests: m, indexer: idx, events: events, timeout: defaultIndexTimeout}
}

// SetIndexMarker makes the consumer update the document registry after a
// successful run.
func (h *IndexConsumer) SetIndexMarker(mk IndexMarker) {
	h.marker = mk
}

func (h *IndexConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var req IndexRequest
	if err := json.Unmarshal(m.Body, &req); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if err := ingest.ValidateSessionID(req.SessionID); err != nil {
		slog.Error("poison pill: invalid session id", "session_id", req.SessionID, "error", err)
		return nil
	}

	ctx := context.Background()
	if req.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, req.CorrelationID)
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	docs, err := h.manifests.List(ctx, req.SessionID)
	if err != nil {
		slog.ErrorContext(ctx, "load manifests failed", "session_id", req.SessionID, "error", err)
		return err
	}
	if len(docs) == 0 {
		slog.WarnContext(ctx, "nothing to index", "session_id", req.SessionID)
		return nil
	}

	report, err := h.indexer.IndexDocuments(ctx, req.SessionID, docs)
	if err != nil {
		slog.ErrorContext(ctx, "index session failed", "session_id", req.SessionID, "error", err)
		if errors.Is(err, ingest.ErrSessionMismatch) {
			return nil
		}
		return err
	}

	slog.InfoContext(ctx, "session indexed", "session_id", req.SessionID, "vectors", report.Vectors)
	if h.marker != nil {
		if err := h.marker.MarkIndexed(ctx, req.SessionID, time.Now().UTC()); err != nil {
			slog.WarnContext(ctx, "failed to mark documents indexed", "session_id", req.SessionID, "error", err)
		}
	}
	if h.events != nil {
		ev := IngestResult{
			SessionID:       req.SessionID,
			ProcessedFiles:  report.Documents,
			ProcessedChunks: report.Chunks,
			IndexedVectors:  report.Vectors,
			CorrelationID:   req.CorrelationID,
		}
		if err := h.events.PublishResult(ctx, ev); err != nil {
			slog.WarnContext(ctx, "failed to publish ingest result", "session_id", req.SessionID, "error", err)
		}
	}
	return nil
}
