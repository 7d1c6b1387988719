package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goopenai "github.com/sashabaranov/go-openai"

	"liveworkshop/backend/internal/embedding"
)

const DefaultModel = string(goopenai.SmallEmbedding3)

var ErrMissingAPIKey = errors.New("openai api key not configured")

type Provider struct {
	client    *goopenai.Client
	model     string
	dimension int
}

// NewProvider builds an OpenAI-compatible embedding provider. baseURL may
// point at any server speaking the OpenAI embeddings API. A positive
// dimension is requested from models that support shortened embeddings.
func NewProvider(apiKey, baseURL, model string, dimension int) (*Provider, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Provider{
		client:    goopenai.NewClientWithConfig(cfg),
		model:     model,
		dimension: dimension,
	}, nil
}

// EmbedBatch ignores inputType; OpenAI embeddings are symmetric.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string, _ embedding.InputType) ([][]float32, error) {
	req := goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(p.model),
	}
	if p.dimension > 0 {
		req.Dimensions = p.dimension
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "openai embedding failed", "model", p.model, "error", err)
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	// Data carries its own index; do not rely on response order.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai returned out-of-range index %d", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("openai returned no embedding for input %d", i)
		}
	}
	return out, nil
}
