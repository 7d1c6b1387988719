package worker_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"liveworkshop/backend/internal/ingest"
)

type MockManifestLister struct{ mock.Mock }

func (m *MockManifestLister) List(ctx context.Context, sessionID string) ([]*ingest.ProcessedDocument, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ingest.ProcessedDocument), args.Error(1)
}

type MockIndexer struct{ mock.Mock }

func (m *MockIndexer) IndexDocuments(ctx context.Context, sessionID string, docs []*ingest.ProcessedDocument) (*ingest.IndexReport, error) {
	args := m.Called(ctx, sessionID, docs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.IndexReport), args.Error(1)
}

type MockTaskPublisher struct{ mock.Mock }

func (m *MockTaskPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

type MockIndexMarker struct{ mock.Mock }

func (m *MockIndexMarker) MarkIndexed(ctx context.Context, sessionID string, at time.Time) error {
	return m.Called(ctx, sessionID, at).Error(0)
}
