package document_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"liveworkshop/backend/features/document"
	"liveworkshop/backend/internal/adapter/s3"
	"liveworkshop/backend/internal/ingest"
	"liveworkshop/backend/internal/worker"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) Upsert(ctx context.Context, doc *document.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockRepo) ListBySession(ctx context.Context, sessionID string) ([]document.Document, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]document.Document), args.Error(1)
}

func (m *MockRepo) MarkIndexed(ctx context.Context, sessionID string, at time.Time) error {
	args := m.Called(ctx, sessionID, at)
	return args.Error(0)
}

type MockIndexer struct{ mock.Mock }

func (m *MockIndexer) IndexDocuments(ctx context.Context, sessionID string, docs []*ingest.ProcessedDocument) (*ingest.IndexReport, error) {
	args := m.Called(ctx, sessionID, docs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.IndexReport), args.Error(1)
}

type MockFailures struct{ mock.Mock }

func (m *MockFailures) Record(ctx context.Context, sessionID string, f ingest.FileFailure) error {
	args := m.Called(ctx, sessionID, f)
	return args.Error(0)
}

func (m *MockFailures) Resolve(ctx context.Context, sessionID, fileName string) error {
	args := m.Called(ctx, sessionID, fileName)
	return args.Error(0)
}

type MockEvents struct{ mock.Mock }

func (m *MockEvents) PublishResult(ctx context.Context, ev worker.IngestResult) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockEvents) RequestIndex(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

type MockStorage struct{ mock.Mock }

func (m *MockStorage) PresignUpload(ctx context.Context, sessionID, fileName string) (*s3.PresignedUpload, error) {
	args := m.Called(ctx, sessionID, fileName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PresignedUpload), args.Error(1)
}

func (m *MockStorage) SyncSession(ctx context.Context, sessionID string) (int, error) {
	args := m.Called(ctx, sessionID)
	return args.Int(0), args.Error(1)
}
