package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"liveworkshop/backend/internal/embedding"
)

const DefaultModel = "text-embedding-004"

var ErrMissingAPIKey = errors.New("gemini api key not configured")

type Provider struct {
	client *genai.Client
	model  string
}

func NewProvider(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Provider, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultModel
	}

	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string, inputType embedding.InputType) ([][]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", p.model, "count", len(texts))

	em := p.client.EmbeddingModel(p.model)
	em.TaskType = genai.TaskTypeRetrievalDocument
	if inputType == embedding.InputQuery {
		em.TaskType = genai.TaskTypeRetrievalQuery
	}

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "model", p.model, "error", err)
		return nil, err
	}

	out := make([][]float32, 0, len(res.Embeddings))
	for i, e := range res.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("empty embedding received for input %d", i)
		}
		out = append(out, e.Values)
	}
	return out, nil
}

func (p *Provider) Close() error {
	return p.client.Close()
}
