package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"liveworkshop/backend/internal/adapter/gemini"
	"liveworkshop/backend/internal/embedding"
)

func TestNewProvider_MissingKey(t *testing.T) {
	_, err := gemini.NewProvider(context.Background(), "", "")
	assert.ErrorIs(t, err, gemini.ErrMissingAPIKey)
}

func TestProvider_EmbedBatch(t *testing.T) {
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)

		var body struct {
			Requests []json.RawMessage `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		embeddings := make([]map[string]interface{}, len(body.Requests))
		for i := range body.Requests {
			embeddings[i] = map[string]interface{}{"values": []float32{float32(i), 0.5}}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": embeddings})
	}))
	defer ts.Close()

	ctx := context.Background()
	p, err := gemini.NewProvider(ctx, "test-key", "", option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	defer p.Close()

	vecs, err := p.EmbedBatch(ctx, []string{"a", "b", "c"}, embedding.InputDocument)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(2), vecs[2][0])

	require.NotEmpty(t, paths)
	assert.True(t, strings.HasSuffix(paths[0], ":batchEmbedContents"), paths[0])
}
