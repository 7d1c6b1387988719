package job_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"liveworkshop/backend/features/job"
	"liveworkshop/backend/internal/ingest"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *MockRepo) List(ctx context.Context, sessionID string) ([]job.Job, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]job.Job), args.Error(1)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *MockRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepo) DeleteByFile(ctx context.Context, sessionID, fileName string) error {
	args := m.Called(ctx, sessionID, fileName)
	return args.Error(0)
}

func (m *MockRepo) IncrementRetries(ctx context.Context, id, lastError string) error {
	args := m.Called(ctx, id, lastError)
	return args.Error(0)
}

func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) ProcessFile(ctx context.Context, sessionID, fileName string) (*ingest.ProcessedDocument, error) {
	args := m.Called(ctx, sessionID, fileName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.ProcessedDocument), args.Error(1)
}

type MockRegistrar struct {
	mock.Mock
}

func (m *MockRegistrar) Register(ctx context.Context, doc *ingest.ProcessedDocument) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}
