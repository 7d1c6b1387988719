package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"liveworkshop/backend/internal/ingest"
)

type FileProcessor interface {
	ProcessFile(ctx context.Context, sessionID, fileName string) (*ingest.ProcessedDocument, error)
}

// Registrar records a recovered document; optional.
type Registrar interface {
	Register(ctx context.Context, doc *ingest.ProcessedDocument) error
}

type Service struct {
	repo      Repository
	processor FileProcessor
	registrar Registrar
}

func NewService(repo Repository, processor FileProcessor, registrar Registrar) *Service {
	return &Service{repo: repo, processor: processor, registrar: registrar}
}

// Record stores a file that was skipped during session processing.
func (s *Service) Record(ctx context.Context, sessionID string, f ingest.FileFailure) error {
	payload, err := json.Marshal(filePayload{SessionID: sessionID, FileName: f.FileName})
	if err != nil {
		return err
	}
	return s.repo.Save(ctx, &Job{
		SessionID: sessionID,
		FileName:  f.FileName,
		Handler:   HandlerProcessFile,
		Payload:   payload,
		Error:     f.Error,
	})
}

// Resolve clears the failed job of a file that has since been processed.
func (s *Service) Resolve(ctx context.Context, sessionID, fileName string) error {
	return s.repo.DeleteByFile(ctx, sessionID, fileName)
}

func (s *Service) List(ctx context.Context, sessionID string) ([]Job, error) {
	return s.repo.List(ctx, sessionID)
}

// Retry re-processes the recorded file. The record is deleted on success
// and its retry count bumped on failure.
func (s *Service) Retry(ctx context.Context, id string) (*ingest.ProcessedDocument, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Handler != HandlerProcessFile {
		return nil, fmt.Errorf("unsupported job handler %q", job.Handler)
	}

	doc, err := s.processor.ProcessFile(ctx, job.SessionID, job.FileName)
	if err != nil {
		if uerr := s.repo.IncrementRetries(ctx, id, err.Error()); uerr != nil {
			slog.WarnContext(ctx, "failed to update job retries", "id", id, "error", uerr)
		}
		return nil, fmt.Errorf("retry %s/%s: %w", job.SessionID, job.FileName, err)
	}

	if s.registrar != nil {
		if err := s.registrar.Register(ctx, doc); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "failed job recovered", "id", id, "session_id", job.SessionID, "file_name", job.FileName)
	return doc, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
