package worker

import (
	"context"
	"time"

	"liveworkshop/backend/internal/ingest"
)

// TaskPublisher is satisfied by *nsq.Producer.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type ManifestLister interface {
	List(ctx context.Context, sessionID string) ([]*ingest.ProcessedDocument, error)
}

type DocumentIndexer interface {
	IndexDocuments(ctx context.Context, sessionID string, docs []*ingest.ProcessedDocument) (*ingest.IndexReport, error)
}

// IndexMarker records that a session's documents were indexed.
type IndexMarker interface {
	MarkIndexed(ctx context.Context, sessionID string, at time.Time) error
}
