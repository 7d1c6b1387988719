package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultMaxBatchSize = 90
	DefaultBatchDelay   = 100 * time.Millisecond
)

var ErrEmbeddingBatchFailure = errors.New("embedding batch failed")

type InputType string

const (
	InputDocument InputType = "document"
	InputQuery    InputType = "query"
)

// Provider embeds a single batch. Implementations must return one vector per
// input, in input order.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string, inputType InputType) ([][]float32, error)
}

type Options struct {
	MaxBatchSize int
	// BatchDelay is the minimum spacing between provider calls.
	BatchDelay time.Duration
	// Dimension, when set, is enforced on every returned vector.
	Dimension int
}

// BatchEmbedder splits inputs into provider-sized batches. The limiter is
// shared by every call on the same BatchEmbedder, so spacing holds across
// concurrent documents too.
type BatchEmbedder struct {
	provider Provider
	opts     Options
	limiter  *rate.Limiter
}

func New(p Provider, opts Options) *BatchEmbedder {
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = DefaultMaxBatchSize
	}
	limit := rate.Inf
	if opts.BatchDelay > 0 {
		limit = rate.Every(opts.BatchDelay)
	}
	return &BatchEmbedder{
		provider: p,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

func (e *BatchEmbedder) Dimension() int {
	return e.opts.Dimension
}

// Embed embeds document chunks. The result is aligned with texts; any batch
// failure fails the whole call and no vectors are returned.
func (e *BatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts, InputDocument)
}

// EmbedQuery embeds a single search query as a one-item batch.
func (e *BatchEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, InputQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *BatchEmbedder) embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	dim := e.opts.Dimension
	batches := (len(texts) + e.opts.MaxBatchSize - 1) / e.opts.MaxBatchSize

	for b := 0; b < batches; b++ {
		start := b * e.opts.MaxBatchSize
		end := start + e.opts.MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: batch %d/%d: %v", ErrEmbeddingBatchFailure, b+1, batches, err)
		}

		slog.DebugContext(ctx, "embedding batch", "batch", b+1, "batches", batches, "size", len(batch), "input_type", inputType)
		vecs, err := e.provider.EmbedBatch(ctx, batch, inputType)
		if err != nil {
			slog.ErrorContext(ctx, "embedding batch failed", "batch", b+1, "batches", batches, "error", err)
			return nil, fmt.Errorf("%w: batch %d/%d: %v", ErrEmbeddingBatchFailure, b+1, batches, err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("%w: batch %d/%d returned %d vectors for %d inputs",
				ErrEmbeddingBatchFailure, b+1, batches, len(vecs), len(batch))
		}

		for i, v := range vecs {
			if dim == 0 {
				dim = len(v)
			}
			if len(v) == 0 || len(v) != dim {
				return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d",
					ErrEmbeddingBatchFailure, start+i, len(v), dim)
			}
		}
		out = append(out, vecs...)
	}

	return out, nil
}
