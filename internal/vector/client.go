package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"liveworkshop/backend/internal/retry"
)

type Options struct {
	QueryTimeout      time.Duration
	QueryMaxAttempts  int
	QueryBackoff      func(attempt int) time.Duration
	ReadyTimeout      time.Duration
	ReadyPollInterval time.Duration
	UpsertBatchSize   int
}

func DefaultOptions() Options {
	return Options{
		QueryTimeout:      20 * time.Second,
		QueryMaxAttempts:  3,
		QueryBackoff:      retry.Exponential(time.Second),
		ReadyTimeout:      60 * time.Second,
		ReadyPollInterval: time.Second,
		UpsertBatchSize:   100,
	}
}

// Client adds index lifecycle, validation and query retries on top of a
// Backend. It holds no per-session state.
type Client struct {
	backend Backend
	opts    Options
}

func NewClient(b Backend, opts Options) *Client {
	def := DefaultOptions()
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = def.QueryTimeout
	}
	if opts.QueryMaxAttempts <= 0 {
		opts.QueryMaxAttempts = def.QueryMaxAttempts
	}
	if opts.QueryBackoff == nil {
		opts.QueryBackoff = def.QueryBackoff
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = def.ReadyTimeout
	}
	if opts.ReadyPollInterval <= 0 {
		opts.ReadyPollInterval = def.ReadyPollInterval
	}
	if opts.UpsertBatchSize <= 0 {
		opts.UpsertBatchSize = def.UpsertBatchSize
	}
	return &Client{backend: b, opts: opts}
}

// GetOrCreateIndex returns the named index, creating it when absent and
// waiting until it reports ready. An existing index with another dimension
// is an error, never silently reused or recreated.
func (c *Client) GetOrCreateIndex(ctx context.Context, spec IndexSpec) (*Index, error) {
	if spec.Name == "" || spec.Dimension <= 0 {
		return nil, fmt.Errorf("%w: invalid spec name=%q dimension=%d", ErrIndexUnavailable, spec.Name, spec.Dimension)
	}

	desc, err := c.backend.DescribeIndex(ctx, spec.Name)
	switch {
	case err == nil:
		return c.awaitIndex(ctx, spec, desc)
	case !errors.Is(err, ErrIndexNotFound):
		return nil, fmt.Errorf("%w: describe %s: %v", ErrIndexUnavailable, spec.Name, err)
	}

	slog.InfoContext(ctx, "creating vector index", "index", spec.Name, "dimension", spec.Dimension)
	if err := c.backend.CreateIndex(ctx, spec); err != nil {
		// Another process may have created it first.
		desc, derr := c.backend.DescribeIndex(ctx, spec.Name)
		if derr != nil {
			return nil, fmt.Errorf("%w: create %s: %v", ErrIndexUnavailable, spec.Name, err)
		}
		return c.awaitIndex(ctx, spec, desc)
	}

	desc, err = c.backend.DescribeIndex(ctx, spec.Name)
	if err != nil && !errors.Is(err, ErrIndexNotFound) {
		return nil, fmt.Errorf("%w: describe %s: %v", ErrIndexUnavailable, spec.Name, err)
	}
	if desc == nil {
		desc = &IndexDescription{Name: spec.Name, Dimension: spec.Dimension}
	}
	return c.awaitIndex(ctx, spec, desc)
}

func (c *Client) awaitIndex(ctx context.Context, spec IndexSpec, desc *IndexDescription) (*Index, error) {
	if desc.Dimension != 0 && desc.Dimension != spec.Dimension {
		return nil, fmt.Errorf("%w: %w: index %s has dimension %d, want %d",
			ErrIndexUnavailable, ErrDimensionMismatch, spec.Name, desc.Dimension, spec.Dimension)
	}
	if !desc.Ready {
		if err := c.waitReady(ctx, spec.Name); err != nil {
			return nil, err
		}
	}
	return &Index{Name: spec.Name, Dimension: spec.Dimension}, nil
}

func (c *Client) waitReady(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.ReadyPollInterval)
	defer ticker.Stop()

	for {
		desc, err := c.backend.DescribeIndex(ctx, name)
		if err == nil && desc.Ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s not ready: %v", ErrIndexUnavailable, name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Upsert writes records into namespace. Writing the same IDs again
// overwrites them. Every vector is checked against the index dimension
// before anything is written.
func (c *Client) Upsert(ctx context.Context, idx *Index, namespace string, records []Record) error {
	if idx == nil {
		return fmt.Errorf("%w: nil index", ErrIndexUnavailable)
	}
	if namespace == "" {
		return ErrNamespaceRequired
	}
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record %d has empty id", i)
		}
		if len(r.Values) != idx.Dimension {
			return fmt.Errorf("%w: record %s has %d values, index %s expects %d",
				ErrDimensionMismatch, r.ID, len(r.Values), idx.Name, idx.Dimension)
		}
	}

	for start := 0; start < len(records); start += c.opts.UpsertBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + c.opts.UpsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := c.backend.Upsert(ctx, idx.Name, namespace, records[start:end]); err != nil {
			return fmt.Errorf("upsert %s/%s records %d-%d: %w", idx.Name, namespace, start, end, err)
		}
	}

	slog.DebugContext(ctx, "vectors upserted", "index", idx.Name, "namespace", namespace, "count", len(records))
	return nil
}

// Query returns up to req.TopK matches, best first. Each attempt runs under
// QueryTimeout and failed attempts are retried with backoff; when the budget
// is spent the last error is returned.
func (c *Client) Query(ctx context.Context, idx *Index, req QueryRequest) ([]Match, error) {
	if idx == nil {
		return nil, fmt.Errorf("%w: nil index", ErrIndexUnavailable)
	}
	if req.Namespace == "" {
		return nil, ErrNamespaceRequired
	}
	if len(req.Vector) != idx.Dimension {
		return nil, fmt.Errorf("%w: query has %d values, index %s expects %d",
			ErrDimensionMismatch, len(req.Vector), idx.Name, idx.Dimension)
	}
	if req.TopK <= 0 {
		return []Match{}, nil
	}

	policy := retry.Policy{
		MaxAttempts: c.opts.QueryMaxAttempts,
		Timeout:     c.opts.QueryTimeout,
		Backoff:     c.opts.QueryBackoff,
	}

	var matches []Match
	attempt := 0
	err := retry.Do(ctx, policy, func(attemptCtx context.Context) error {
		attempt++
		res, err := c.backend.Query(attemptCtx, idx.Name, req)
		if err == nil {
			matches = res
			return nil
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %v", ErrQueryTimeout, c.opts.QueryTimeout, err)
		} else {
			err = fmt.Errorf("%w: %v", ErrQueryFailure, err)
		}
		slog.WarnContext(ctx, "vector query attempt failed",
			"index", idx.Name, "namespace", req.Namespace, "attempt", attempt, "max_attempts", policy.MaxAttempts, "error", err)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(matches) > req.TopK {
		matches = matches[:req.TopK]
	}
	return matches, nil
}

// Handle resolves an index lazily and caches it once resolution succeeds.
type Handle struct {
	client *Client
	spec   IndexSpec

	mu  sync.Mutex
	idx *Index
}

func (c *Client) Handle(spec IndexSpec) *Handle {
	return &Handle{client: c, spec: spec}
}

func (h *Handle) Resolve(ctx context.Context) (*Index, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.idx != nil {
		return h.idx, nil
	}
	idx, err := h.client.GetOrCreateIndex(ctx, h.spec)
	if err != nil {
		return nil, err
	}
	h.idx = idx
	return idx, nil
}

func (h *Handle) Upsert(ctx context.Context, namespace string, records []Record) error {
	idx, err := h.Resolve(ctx)
	if err != nil {
		return err
	}
	return h.client.Upsert(ctx, idx, namespace, records)
}

func (h *Handle) Query(ctx context.Context, req QueryRequest) ([]Match, error) {
	idx, err := h.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return h.client.Query(ctx, idx, req)
}
