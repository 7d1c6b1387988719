package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"liveworkshop/backend/internal/parser"
	"liveworkshop/backend/internal/text"
)

type Parser interface {
	Parse(path, fileType string) (*parser.Result, error)
}

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	// Now stamps createdAt and processedAt. Defaults to time.Now.
	Now func() time.Time
}

// Orchestrator parses and chunks uploaded files and persists the resulting
// manifests. It does not embed; see Indexer.
type Orchestrator struct {
	parser Parser
	area   *FileArea
	store  ManifestStore
	opts   Options
}

func NewOrchestrator(p Parser, area *FileArea, store ManifestStore, opts Options) *Orchestrator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = text.DefaultChunkSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{parser: p, area: area, store: store, opts: opts}
}

func (o *Orchestrator) ProcessFile(ctx context.Context, sessionID, fileName string) (*ProcessedDocument, error) {
	path, err := o.area.UploadPath(sessionID, fileName)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	fileType := strings.ToLower(filepath.Ext(name))
	res, err := o.parser.Parse(path, fileType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyContent, name)
	}

	now := o.opts.Now().UTC()
	spans := text.ChunkSpans(res.Text, o.opts.ChunkSize, o.opts.ChunkOverlap)
	chunks := make([]Chunk, 0, len(spans))
	for i, sp := range spans {
		md := ChunkMetadata{
			FileName:    name,
			FileType:    fileType,
			ChunkIndex:  i,
			TotalChunks: len(spans),
			SessionID:   sessionID,
			SourceFile:  name,
			WordCount:   text.WordCount(sp.Content),
			CreatedAt:   now,
		}
		if page := res.PageAt(sp.Start); page > 0 {
			md.PageNumber = &page
		}
		chunks = append(chunks, Chunk{
			ID:       ChunkID(sessionID, name, i),
			Content:  sp.Content,
			Metadata: md,
		})
	}

	doc := &ProcessedDocument{
		FileName:     name,
		FileType:     fileType,
		OriginalSize: info.Size(),
		Chunks:       chunks,
		TotalChunks:  len(chunks),
		ProcessedAt:  now,
		SessionID:    sessionID,
		Degraded:     res.Degraded,
	}
	if err := o.store.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save manifest %s: %w", name, err)
	}

	slog.InfoContext(ctx, "file processed",
		"session_id", sessionID, "file_name", name, "chunk_count", len(chunks), "degraded", res.Degraded)
	return doc, nil
}

// ProcessSessionFiles processes every upload of the session and returns the
// documents that succeeded. Failed files are logged and skipped.
func (o *Orchestrator) ProcessSessionFiles(ctx context.Context, sessionID string) ([]*ProcessedDocument, error) {
	res, err := o.ProcessSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return res.Documents, nil
}

// ProcessSession is ProcessSessionFiles with the per-file failures. Files
// are processed one at a time; cancellation stops before the next file and
// returns what was completed along with the context error.
func (o *Orchestrator) ProcessSession(ctx context.Context, sessionID string) (*SessionResult, error) {
	if err := o.area.Ensure(sessionID); err != nil {
		return nil, err
	}
	names, err := o.area.ListUploads(sessionID)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}

	res := &SessionResult{Documents: make([]*ProcessedDocument, 0, len(names))}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		doc, err := o.ProcessFile(ctx, sessionID, name)
		if err != nil {
			slog.WarnContext(ctx, "skipping file", "session_id", sessionID, "file_name", name, "error", err)
			res.Failures = append(res.Failures, FileFailure{FileName: name, Error: err.Error()})
			continue
		}
		res.Documents = append(res.Documents, doc)
	}

	slog.InfoContext(ctx, "session processed",
		"session_id", sessionID, "processed_files", len(res.Documents), "skipped_files", len(res.Failures), "chunk_count", res.ChunkCount())
	return res, nil
}
