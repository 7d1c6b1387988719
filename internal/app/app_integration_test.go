package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	weaviate_adapter "liveworkshop/backend/internal/adapter/weaviate"
	"liveworkshop/backend/internal/app"
	"liveworkshop/backend/internal/config"
	"liveworkshop/backend/internal/embedding"
	"liveworkshop/backend/internal/testutils"
	"liveworkshop/backend/internal/worker"
)

type constantProvider struct{}

func (constantProvider) EmbedBatch(_ context.Context, texts []string, _ embedding.InputType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func TestApp_EndToEnd_AsyncIndexing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E integration test")
	}

	// 1. Setup Infrastructure
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	cfg := s.GetAppConfig()
	cfg.SimilarityThreshold = 0.5
	cfg.EnableIndexWorker = true

	// 2. Initialize App
	application, err := app.New(cfg, app.Deps{
		DB:        s.DB,
		Backend:   weaviate_adapter.NewBackend(s.Weaviate),
		Publisher: s.NSQ,
		Provider:  constantProvider{},
	})
	require.NoError(t, err)

	_, err = application.DocumentService.Upload(context.Background(), "sessA", "intro.txt",
		strings.NewReader("The x402 protocol enables machine payments."))
	require.NoError(t, err)

	// 3. Index worker and result listener
	nsqCfg := nsq.NewConfig()
	indexConsumer, err := nsq.NewConsumer(config.TopicIngestIndex, "backend", nsqCfg)
	require.NoError(t, err)
	indexConsumer.AddHandler(application.IndexConsumer)
	require.NoError(t, indexConsumer.ConnectToNSQD(cfg.NSQDHost))
	defer indexConsumer.Stop()

	results := make(chan worker.IngestResult, 4)
	resultConsumer, err := nsq.NewConsumer(config.TopicIngestResult, "test", nsqCfg)
	require.NoError(t, err)
	resultConsumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		var ev worker.IngestResult
		if err := json.Unmarshal(m.Body, &ev); err == nil {
			results <- ev
		}
		return nil
	}))
	require.NoError(t, resultConsumer.ConnectToNSQD(cfg.NSQDHost))
	defer resultConsumer.Stop()

	// 4. Process with async indexing
	req := httptest.NewRequest("POST", "/sessions/sessA/process?index=true&async=true", nil)
	w := httptest.NewRecorder()
	application.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 5. Wait for the worker's result event
	deadline := time.After(20 * time.Second)
	for indexed := false; !indexed; {
		select {
		case ev := <-results:
			indexed = ev.IndexedVectors == 1
		case <-deadline:
			t.Fatal("Timeout waiting for index result")
		}
	}

	// 6. Retrieve
	contexts := application.Engine.Retrieval.GetRelevantContext(context.Background(), "payments", "sessA", 3)
	require.Len(t, contexts, 1)
	assert.Contains(t, contexts[0], "[Source: intro.txt]")
}
