package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"liveworkshop/backend/internal/adapter/s3"
	"liveworkshop/backend/internal/ingest"
	"liveworkshop/backend/internal/worker"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrStorageDisabled = errors.New("object storage is not configured")
	// ErrIndexWorkerDisabled rejects async indexing when nothing consumes
	// the index topic.
	ErrIndexWorkerDisabled = errors.New("async indexing requires the index worker")
)

var allowedExts = map[string]bool{
	".pdf": true, ".md": true, ".txt": true, ".json": true, ".csv": true,
}

// Document is the registry row of a processed file.
type Document struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"sessionId"`
	FileName     string     `json:"fileName"`
	FileType     string     `json:"fileType"`
	OriginalSize int64      `json:"originalSize"`
	TotalChunks  int        `json:"totalChunks"`
	Degraded     bool       `json:"degraded"`
	ProcessedAt  time.Time  `json:"processedAt"`
	IndexedAt    *time.Time `json:"indexedAt,omitempty"`
}

type ProcessOptions struct {
	Index bool
	// Async hands indexing to the index worker instead of running inline.
	Async           bool
	SyncFromStorage bool
}

type ProcessReport struct {
	SessionID       string               `json:"sessionId"`
	SyncedObjects   int                  `json:"syncedObjects"`
	ProcessedFiles  int                  `json:"processedFiles"`
	ProcessedChunks int                  `json:"processedChunks"`
	IndexedVectors  int                  `json:"indexedVectors"`
	IndexQueued     bool                 `json:"indexQueued"`
	Skipped         []ingest.FileFailure `json:"skipped"`
}

type UploadResult struct {
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

type Processor interface {
	ProcessSession(ctx context.Context, sessionID string) (*ingest.SessionResult, error)
}

type ManifestReader interface {
	Load(ctx context.Context, sessionID, fileName string) (*ingest.ProcessedDocument, error)
}

type Indexer interface {
	IndexDocuments(ctx context.Context, sessionID string, docs []*ingest.ProcessedDocument) (*ingest.IndexReport, error)
}

// FailureRecorder keeps at most one failed job per file.
type FailureRecorder interface {
	Record(ctx context.Context, sessionID string, f ingest.FileFailure) error
	Resolve(ctx context.Context, sessionID, fileName string) error
}

type Events interface {
	PublishResult(ctx context.Context, ev worker.IngestResult) error
	RequestIndex(ctx context.Context, sessionID string) error
}

type ObjectStore interface {
	PresignUpload(ctx context.Context, sessionID, fileName string) (*s3.PresignedUpload, error)
	SyncSession(ctx context.Context, sessionID string) (int, error)
}

// Deps are the collaborators of Service. Failures, Events and Storage are
// optional.
type Deps struct {
	Area      *ingest.FileArea
	Processor Processor
	Manifests ManifestReader
	Indexer   Indexer
	Repo      Repository
	Failures  FailureRecorder
	Events    Events
	Storage   ObjectStore
	// IndexWorker reports whether an index worker consumes queued requests.
	IndexWorker bool
	// MaxUploadBytes caps a single upload; zero means unlimited.
	MaxUploadBytes int64
	Now            func() time.Time
}

type Service struct {
	deps Deps
}

func NewService(deps Deps) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// SetFailureRecorder wires the failed-job store after construction, since
// the job feature registers recovered files through this service.
func (s *Service) SetFailureRecorder(f FailureRecorder) {
	s.deps.Failures = f
}

func (s *Service) Upload(ctx context.Context, sessionID, fileName string, r io.Reader) (*UploadResult, error) {
	if err := ingest.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	name, err := ingest.SanitizeFileName(fileName)
	if err != nil {
		return nil, err
	}
	if !allowedExts[strings.ToLower(filepath.Ext(name))] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, name)
	}

	n, err := s.deps.Area.SaveUpload(sessionID, name, r, s.deps.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "file uploaded", "session_id", sessionID, "file_name", name, "size", n)
	return &UploadResult{FileName: name, Size: n}, nil
}

func (s *Service) PresignUpload(ctx context.Context, sessionID, fileName string) (*s3.PresignedUpload, error) {
	if s.deps.Storage == nil {
		return nil, ErrStorageDisabled
	}
	name, err := ingest.SanitizeFileName(fileName)
	if err != nil {
		return nil, err
	}
	if !allowedExts[strings.ToLower(filepath.Ext(name))] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, name)
	}
	return s.deps.Storage.PresignUpload(ctx, sessionID, name)
}

// Process ingests every upload of the session. Skipped files are recorded
// as failed jobs; indexing failures fail the call.
func (s *Service) Process(ctx context.Context, sessionID string, opts ProcessOptions) (*ProcessReport, error) {
	if err := ingest.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	if opts.Index && opts.Async && !s.deps.IndexWorker {
		return nil, ErrIndexWorkerDisabled
	}
	report := &ProcessReport{SessionID: sessionID, Skipped: []ingest.FileFailure{}}

	if opts.SyncFromStorage {
		if s.deps.Storage == nil {
			return nil, ErrStorageDisabled
		}
		n, err := s.deps.Storage.SyncSession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("sync from storage: %w", err)
		}
		report.SyncedObjects = n
	}

	res, err := s.deps.Processor.ProcessSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	report.ProcessedFiles = len(res.Documents)
	report.ProcessedChunks = res.ChunkCount()
	report.Skipped = append(report.Skipped, res.Failures...)

	if s.deps.Failures != nil {
		for _, f := range res.Failures {
			if err := s.deps.Failures.Record(ctx, sessionID, f); err != nil {
				slog.WarnContext(ctx, "failed to record failed job", "session_id", sessionID, "file_name", f.FileName, "error", err)
			}
		}
	}

	for _, doc := range res.Documents {
		if err := s.Register(ctx, doc); err != nil {
			return nil, err
		}
		if s.deps.Failures != nil {
			if err := s.deps.Failures.Resolve(ctx, sessionID, doc.FileName); err != nil {
				slog.WarnContext(ctx, "failed to clear failed job", "session_id", sessionID, "file_name", doc.FileName, "error", err)
			}
		}
	}

	if opts.Index && len(res.Documents) > 0 {
		if err := s.index(ctx, sessionID, res.Documents, opts.Async, report); err != nil {
			return nil, err
		}
	}

	s.publishResult(ctx, report)
	return report, nil
}

func (s *Service) index(ctx context.Context, sessionID string, docs []*ingest.ProcessedDocument, async bool, report *ProcessReport) error {
	if async {
		if s.deps.Events == nil {
			return errors.New("async indexing requires an event publisher")
		}
		if err := s.deps.Events.RequestIndex(ctx, sessionID); err != nil {
			return fmt.Errorf("queue indexing: %w", err)
		}
		report.IndexQueued = true
		return nil
	}

	ir, err := s.deps.Indexer.IndexDocuments(ctx, sessionID, docs)
	if err != nil {
		return err
	}
	report.IndexedVectors = ir.Vectors
	if err := s.deps.Repo.MarkIndexed(ctx, sessionID, s.deps.Now().UTC()); err != nil {
		slog.WarnContext(ctx, "failed to mark documents indexed", "session_id", sessionID, "error", err)
	}
	return nil
}

func (s *Service) publishResult(ctx context.Context, report *ProcessReport) {
	if s.deps.Events == nil {
		return
	}
	ev := worker.IngestResult{
		SessionID:       report.SessionID,
		ProcessedFiles:  report.ProcessedFiles,
		ProcessedChunks: report.ProcessedChunks,
		IndexedVectors:  report.IndexedVectors,
		Skipped:         report.Skipped,
		CompletedAt:     s.deps.Now().UTC(),
	}
	if err := s.deps.Events.PublishResult(ctx, ev); err != nil {
		slog.WarnContext(ctx, "failed to publish ingest result", "session_id", report.SessionID, "error", err)
	}
}

// Register records doc in the document registry.
func (s *Service) Register(ctx context.Context, doc *ingest.ProcessedDocument) error {
	d := &Document{
		SessionID:    doc.SessionID,
		FileName:     doc.FileName,
		FileType:     doc.FileType,
		OriginalSize: doc.OriginalSize,
		TotalChunks:  doc.TotalChunks,
		Degraded:     doc.Degraded,
		ProcessedAt:  doc.ProcessedAt,
	}
	if err := s.deps.Repo.Upsert(ctx, d); err != nil {
		return fmt.Errorf("register %s: %w", doc.FileName, err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, sessionID string) ([]Document, error) {
	if err := ingest.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	return s.deps.Repo.ListBySession(ctx, sessionID)
}

func (s *Service) Get(ctx context.Context, sessionID, fileName string) (*ingest.ProcessedDocument, error) {
	if err := ingest.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	name, err := ingest.SanitizeFileName(fileName)
	if err != nil {
		return nil, err
	}
	return s.deps.Manifests.Load(ctx, sessionID, name)
}
