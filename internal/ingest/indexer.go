package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"liveworkshop/backend/internal/text"
	"liveworkshop/backend/internal/vector"
)

const contentPreviewLength = 1000

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is satisfied by *vector.Handle.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace string, records []vector.Record) error
}

type IndexReport struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Vectors   int `json:"vectors"`
}

// Indexer embeds processed documents and upserts them into the session's
// namespace. Any failure aborts the whole call.
type Indexer struct {
	embedder Embedder
	index    VectorIndex
}

func NewIndexer(e Embedder, idx VectorIndex) *Indexer {
	return &Indexer{embedder: e, index: idx}
}

func (x *Indexer) IndexDocuments(ctx context.Context, sessionID string, docs []*ProcessedDocument) (*IndexReport, error) {
	report := &IndexReport{Documents: len(docs)}

	var chunks []Chunk
	for _, d := range docs {
		if d.SessionID != sessionID {
			return nil, fmt.Errorf("%w: %s is in %s, not %s", ErrSessionMismatch, d.FileName, d.SessionID, sessionID)
		}
		chunks = append(chunks, d.Chunks...)
	}
	report.Chunks = len(chunks)
	if len(chunks) == 0 {
		return report, nil
	}

	// One Embed call for all documents keeps batch limits global.
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	records := make([]vector.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vector.Record{
			ID:       c.ID,
			Values:   vecs[i],
			Metadata: recordMetadata(c),
		}
	}
	if err := x.index.Upsert(ctx, sessionID, records); err != nil {
		return nil, err
	}
	report.Vectors = len(records)

	for _, d := range docs {
		slog.InfoContext(ctx, "document indexed", "session_id", sessionID, "file_name", d.FileName, "chunk_count", d.TotalChunks)
	}
	return report, nil
}

func recordMetadata(c Chunk) map[string]interface{} {
	md := map[string]interface{}{
		"fileName":    c.Metadata.FileName,
		"sessionId":   c.Metadata.SessionID,
		"content":     text.Preview(c.Content, contentPreviewLength),
		"chunkIndex":  c.Metadata.ChunkIndex,
		"totalChunks": c.Metadata.TotalChunks,
		"sourceFile":  c.Metadata.SourceFile,
		"wordCount":   c.Metadata.WordCount,
	}
	if c.Metadata.PageNumber != nil {
		md["pageNumber"] = *c.Metadata.PageNumber
	}
	return md
}
