package job_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveworkshop/backend/features/job"
	"liveworkshop/backend/internal/testutils"
)

func TestJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	jobRepo := job.NewPostgresRepo(s.DB)
	ctx := context.Background()

	j1 := &job.Job{
		SessionID: "sessA",
		FileName:  "a.txt",
		Handler:   job.HandlerProcessFile,
		Payload:   json.RawMessage(`{"data": 1}`),
		Error:     "error 1",
	}
	require.NoError(t, jobRepo.Save(ctx, j1))

	// Sleep to ensure time difference for ordering test
	time.Sleep(100 * time.Millisecond)

	j2 := &job.Job{
		SessionID: "sessB",
		FileName:  "b.txt",
		Handler:   job.HandlerProcessFile,
		Payload:   json.RawMessage(`{"data": 2}`),
		Error:     "error 2",
	}
	require.NoError(t, jobRepo.Save(ctx, j2))

	jobs, err := jobRepo.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, j2.ID, jobs[0].ID, "Newest job should be first")

	jobs, err = jobRepo.List(ctx, "sessA")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "a.txt", jobs[0].FileName)

	require.NoError(t, jobRepo.IncrementRetries(ctx, j1.ID, "error 1b"))
	got, err := jobRepo.Get(ctx, j1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Retries)
	assert.Equal(t, "error 1b", got.Error)

	again := &job.Job{
		SessionID: "sessB",
		FileName:  "b.txt",
		Handler:   job.HandlerProcessFile,
		Payload:   json.RawMessage(`{"data": 2}`),
		Error:     "error 2b",
	}
	require.NoError(t, jobRepo.Save(ctx, again))
	assert.Equal(t, j2.ID, again.ID, "same file keeps its row")
	assert.Equal(t, 1, again.Retries)

	jobs, err = jobRepo.List(ctx, "sessB")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "error 2b", jobs[0].Error)

	require.NoError(t, jobRepo.Delete(ctx, j1.ID))
	count, err := jobRepo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, jobRepo.DeleteByFile(ctx, "sessB", "b.txt"))
	count, err = jobRepo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
