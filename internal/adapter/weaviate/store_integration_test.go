package weaviate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveworkshop/backend/internal/adapter/weaviate"
	"liveworkshop/backend/internal/testutils"
	"liveworkshop/backend/internal/vector"
)

func TestWeaviateBackend_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()
	client := vector.NewClient(weaviate.NewBackend(s.Weaviate), vector.Options{})
	spec := vector.IndexSpec{Name: "SessionChunk", Dimension: 3, Metric: "cosine"}

	idx, err := client.GetOrCreateIndex(ctx, spec)
	require.NoError(t, err)

	// Reopening is idempotent.
	_, err = client.GetOrCreateIndex(ctx, spec)
	require.NoError(t, err)

	_, err = client.GetOrCreateIndex(ctx, vector.IndexSpec{Name: "SessionChunk", Dimension: 8})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)

	err = client.Upsert(ctx, idx, "sessA", []vector.Record{
		{ID: "a-0", Values: []float32{1, 0, 0}, Metadata: map[string]interface{}{"sessionId": "sessA", "fileName": "a.txt", "content": "payments", "chunkIndex": 0}},
		{ID: "a-1", Values: []float32{0, 1, 0}, Metadata: map[string]interface{}{"sessionId": "sessA", "fileName": "a.txt", "content": "refunds", "chunkIndex": 1}},
	})
	require.NoError(t, err)
	err = client.Upsert(ctx, idx, "sessB", []vector.Record{
		{ID: "b-0", Values: []float32{1, 0, 0}, Metadata: map[string]interface{}{"sessionId": "sessB", "fileName": "b.txt", "content": "other", "chunkIndex": 0}},
	})
	require.NoError(t, err)

	res, err := client.Query(ctx, idx, vector.QueryRequest{Vector: []float32{1, 0, 0}, TopK: 10, Namespace: "sessA"})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a-0", res[0].ID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-3)
	assert.Equal(t, "payments", res[0].Metadata["content"])

	// Overwrite keeps the count stable.
	err = client.Upsert(ctx, idx, "sessA", []vector.Record{
		{ID: "a-0", Values: []float32{1, 0, 0}, Metadata: map[string]interface{}{"sessionId": "sessA", "fileName": "a.txt", "content": "payments v2", "chunkIndex": 0}},
	})
	require.NoError(t, err)

	res, err = client.Query(ctx, idx, vector.QueryRequest{Vector: []float32{1, 0, 0}, TopK: 10, Namespace: "sessA"})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "payments v2", res[0].Metadata["content"])

	res, err = client.Query(ctx, idx, vector.QueryRequest{Vector: []float32{1, 0, 0}, TopK: 10, Namespace: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, res)
}
