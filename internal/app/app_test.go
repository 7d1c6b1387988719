package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"liveworkshop/backend/internal/adapter/memory"
	"liveworkshop/backend/internal/app"
	"liveworkshop/backend/internal/config"
	"liveworkshop/backend/internal/embedding"
)

// topicProvider puts "payment" texts on one axis and everything else on
// the other.
type topicProvider struct{}

func (topicProvider) EmbedBatch(_ context.Context, texts []string, _ embedding.InputType) ([][]float32, error) {
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

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	return m.Called(topic, body).Error(0)
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		ServerPort:          8081,
		DataDir:             filepath.Join(dir, "sessions"),
		QueryLogPath:        filepath.Join(dir, "logs", "query.log"),
		MaxUploadSizeMB:     1,
		IndexName:           "SessionChunk",
		EmbeddingDimension:  2,
		EmbedBatchSize:      90,
		ChunkSize:           1000,
		ChunkOverlap:        200,
		SimilarityThreshold: 0.7,
		DefaultMaxContexts:  5,
		QueryMaxAttempts:    1,
	}
}

func newApp(t *testing.T) (*app.App, sqlmock.Sqlmock, *MockPublisher) {
	t.Helper()
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pub := new(MockPublisher)
	a, err := app.New(testConfig(t), app.Deps{
		DB:        db,
		Backend:   memory.NewBackend(),
		Publisher: pub,
		Provider:  topicProvider{},
	})
	require.NoError(t, err)
	return a, sqlMock, pub
}

func TestNew(t *testing.T) {
	a, _, _ := newApp(t)
	assert.NotNil(t, a.Handler)
	assert.NotNil(t, a.IndexConsumer)
	assert.NotNil(t, a.Engine)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestNew_MissingDependency(t *testing.T) {
	_, err := app.New(testConfig(t), app.Deps{})
	assert.Error(t, err)
}

func TestApp_Preflight(t *testing.T) {
	a, _, _ := newApp(t)

	req := httptest.NewRequest("OPTIONS", "/sessions/sessA/context", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestApp_UploadProcessAndRetrieve(t *testing.T) {
	a, sqlMock, pub := newApp(t)
	pub.On("Publish", config.TopicIngestResult, mock.Anything).Return(nil)

	// 1. Upload
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "intro.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("Intro.\n\nThe x402 protocol enables machine payments. It settles in 200ms."))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/sessions/sessA/files", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// 2. Process and index
	sqlMock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs("sessA", "intro.txt", ".txt", int64(72), 1, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("doc-1"))
	sqlMock.ExpectExec(regexp.QuoteMeta("DELETE FROM failed_jobs WHERE session_id = $1 AND file_name = $2")).
		WithArgs("sessA", "intro.txt").
		WillReturnResult(sqlmock.NewResult(0, 0))
	sqlMock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET indexed_at = $2 WHERE session_id = $1")).
		WithArgs("sessA", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req = httptest.NewRequest("POST", "/sessions/sessA/process?index=true", nil)
	w = httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"indexedVectors":1`)
	assert.NoError(t, sqlMock.ExpectationsWereMet())

	// 3. Retrieve
	req = httptest.NewRequest("POST", "/sessions/sessA/context", strings.NewReader(`{"topic":"machine payments","maxContexts":3}`))
	w = httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Contexts []string `json:"contexts"`
			Fallback bool     `json:"fallback"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Data.Contexts, 1)
	assert.True(t, strings.HasPrefix(resp.Data.Contexts[0], "[Source: intro.txt]\n"))
	assert.False(t, resp.Data.Fallback)

	// 4. Another session sees nothing
	req = httptest.NewRequest("POST", "/sessions/sessB/context", strings.NewReader(`{"topic":"machine payments"}`))
	w = httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	assert.JSONEq(t, `{"data":{"contexts":[],"fallback":true}}`, w.Body.String())
	pub.AssertExpectations(t)
}

func TestApp_MCPToolsList(t *testing.T) {
	a, _, _ := newApp(t)

	req := httptest.NewRequest("POST", "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"session_context"`)
}

func TestApp_SessionStats(t *testing.T) {
	a, sqlMock, _ := newApp(t)

	sqlMock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE session_id = $1")).
		WithArgs("sessA").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "file_name", "file_type", "original_size", "total_chunks", "degraded", "processed_at", "indexed_at"}))
	sqlMock.ExpectQuery(regexp.QuoteMeta("FROM failed_jobs")).
		WithArgs("sessA").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "file_name", "handler", "payload", "error", "retries", "created_at"}))

	req := httptest.NewRequest("GET", "/sessions/sessA/stats", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"documents":0`)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}
