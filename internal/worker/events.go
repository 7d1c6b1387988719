package worker

import (
	"time"

	"liveworkshop/backend/internal/ingest"
)

// IndexRequest asks the index worker to embed and upsert every processed
// document of a session.
type IndexRequest struct {
	SessionID     string `json:"session_id"`
	CorrelationID string `json:"correlation_id"`
}

// IngestResult reports the outcome of one session processing run.
type IngestResult struct {
	SessionID       string               `json:"session_id"`
	ProcessedFiles  int                  `json:"processed_files"`
	ProcessedChunks int                  `json:"processed_chunks"`
	IndexedVectors  int                  `json:"indexed_vectors"`
	Skipped         []ingest.FileFailure `json:"skipped,omitempty"`
	Error           string               `json:"error,omitempty"`
	CompletedAt     time.Time            `json:"completed_at"`
	CorrelationID   string               `json:"correlation_id"`
}
