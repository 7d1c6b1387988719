package ingest_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"liveworkshop/backend/internal/adapter/memory"
	"liveworkshop/backend/internal/embedding"
	"liveworkshop/backend/internal/ingest"
	"liveworkshop/backend/internal/retrieval"
	"liveworkshop/backend/internal/vector"
)

// keywordProvider embeds text on two axes: mentions of "payment" and
// everything else.
type keywordProvider struct {
	calls [][]string
}

func (p *keywordProvider) EmbedBatch(ctx context.Context, texts []string, _ embedding.InputType) ([][]float32, error) {
	p.calls = append(p.calls, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(strings.ToLower(t), "payment") {
			out[i] = []float32{1, 0}
		} else {
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

type MockIndex struct{ mock.Mock }

func (m *MockIndex) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	return m.Called(ctx, namespace, records).Error(0)
}

func TestIndexer_EndToEnd(t *testing.T) {
	ctx := context.Background()
	o, area := newOrchestrator(t, ingest.Options{ChunkSize: 1000, ChunkOverlap: 200})
	writeUpload(t, area, "sessA", "intro.txt", x402Text)
	writeUpload(t, area, "sessA", "weather.md", "Sunny with light wind.")

	docs, err := o.ProcessSessionFiles(ctx, "sessA")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	provider := &keywordProvider{}
	embedder := embedding.New(provider, embedding.Options{MaxBatchSize: 90, Dimension: 2})
	backend := memory.NewBackend()
	handle := vector.NewClient(backend, vector.Options{}).Handle(vector.IndexSpec{Name: "SessionChunk", Dimension: 2})

	report, err := ingest.NewIndexer(embedder, handle).IndexDocuments(ctx, "sessA", docs)
	require.NoError(t, err)
	assert.Equal(t, &ingest.IndexReport{Documents: 2, Chunks: 2, Vectors: 2}, report)
	// Both files share one embedding batch.
	assert.Len(t, provider.calls, 1)
	assert.Equal(t, 2, backend.Count("SessionChunk", "sessA"))

	// Re-indexing the same manifests overwrites instead of duplicating.
	_, err = ingest.NewIndexer(embedder, handle).IndexDocuments(ctx, "sessA", docs)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.Count("SessionChunk", "sessA"))

	svc := retrieval.NewService(embedder, handle, nil, retrieval.Options{Threshold: 0.7})
	got := svc.GetRelevantContext(ctx, "machine payments", "sessA", 3)
	assert.Equal(t, []string{"[Source: intro.txt]\n" + x402Text}, got)
	assert.Empty(t, svc.GetRelevantContext(ctx, "machine payments", "sessB", 3))
}

func TestIndexer_Metadata(t *testing.T) {
	page := 3
	doc := &ingest.ProcessedDocument{
		FileName:    "deck.pdf",
		SessionID:   "sessA",
		TotalChunks: 1,
		Chunks: []ingest.Chunk{{
			ID:      ingest.ChunkID("sessA", "deck.pdf", 0),
			Content: strings.Repeat("a", 1200),
			Metadata: ingest.ChunkMetadata{
				FileName: "deck.pdf", SessionID: "sessA", SourceFile: "deck.pdf",
				ChunkIndex: 0, TotalChunks: 1, WordCount: 1, PageNumber: &page,
			},
		}},
	}

	idx := new(MockIndex)
	idx.On("Upsert", mock.Anything, "sessA", mock.MatchedBy(func(recs []vector.Record) bool {
		if len(recs) != 1 {
			return false
		}
		md := recs[0].Metadata
		return md["fileName"] == "deck.pdf" &&
			md["sessionId"] == "sessA" &&
			len(md["content"].(string)) == 1000 &&
			md["pageNumber"] == 3 &&
			md["totalChunks"] == 1
	})).Return(nil)

	e := embedding.New(&keywordProvider{}, embedding.Options{})
	_, err := ingest.NewIndexer(e, idx).IndexDocuments(context.Background(), "sessA", []*ingest.ProcessedDocument{doc})
	require.NoError(t, err)
	idx.AssertExpectations(t)
}

func TestIndexer_Failures(t *testing.T) {
	ctx := context.Background()
	doc := &ingest.ProcessedDocument{
		FileName: "a.txt", SessionID: "sessA", TotalChunks: 1,
		Chunks: []ingest.Chunk{{ID: "x", Content: "hello"}},
	}

	t.Run("Upsert failure fails the call", func(t *testing.T) {
		idx := new(MockIndex)
		idx.On("Upsert", mock.Anything, "sessA", mock.Anything).Return(vector.ErrIndexUnavailable)

		_, err := ingest.NewIndexer(embedding.New(&keywordProvider{}, embedding.Options{}), idx).
			IndexDocuments(ctx, "sessA", []*ingest.ProcessedDocument{doc})
		assert.ErrorIs(t, err, vector.ErrIndexUnavailable)
	})

	t.Run("Embedding failure skips upsert", func(t *testing.T) {
		idx := new(MockIndex)
		m := new(failingProvider)

		_, err := ingest.NewIndexer(embedding.New(m, embedding.Options{}), idx).
			IndexDocuments(ctx, "sessA", []*ingest.ProcessedDocument{doc})
		assert.ErrorIs(t, err, embedding.ErrEmbeddingBatchFailure)
		idx.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Foreign session rejected", func(t *testing.T) {
		_, err := ingest.NewIndexer(embedding.New(&keywordProvider{}, embedding.Options{}), new(MockIndex)).
			IndexDocuments(ctx, "sessB", []*ingest.ProcessedDocument{doc})
		assert.ErrorIs(t, err, ingest.ErrSessionMismatch)
	})

	t.Run("No chunks is a no-op", func(t *testing.T) {
		report, err := ingest.NewIndexer(embedding.New(&keywordProvider{}, embedding.Options{}), new(MockIndex)).
			IndexDocuments(ctx, "sessA", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Vectors)
	})
}

type failingProvider struct{}

func (failingProvider) EmbedBatch(context.Context, []string, embedding.InputType) ([][]float32, error) {
	return nil, errors.New("quota exceeded")
}
