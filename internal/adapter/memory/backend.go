// Package memory is an in-process vector.Backend scored by cosine
// similarity. It backs the CLI's offline mode and the package tests of
// everything that sits on top of the vector client.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"liveworkshop/backend/internal/vector"
)

type index struct {
	spec       vector.IndexSpec
	namespaces map[string]map[string]vector.Record
}

type Backend struct {
	mu      sync.RWMutex
	indexes map[string]*index
}

func NewBackend() *Backend {
	return &Backend{indexes: make(map[string]*index)}
}

func (b *Backend) DescribeIndex(ctx context.Context, name string) (*vector.IndexDescription, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, ok := b.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vector.ErrIndexNotFound, name)
	}
	return &vector.IndexDescription{
		Name:      name,
		Dimension: idx.spec.Dimension,
		Metric:    idx.spec.Metric,
		Ready:     true,
	}, nil
}

func (b *Backend) CreateIndex(ctx context.Context, spec vector.IndexSpec) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.indexes[spec.Name]; ok {
		return fmt.Errorf("index %s already exists", spec.Name)
	}
	b.indexes[spec.Name] = &index{spec: spec, namespaces: make(map[string]map[string]vector.Record)}
	return nil
}

func (b *Backend) Upsert(ctx context.Context, name, namespace string, records []vector.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.indexes[name]
	if !ok {
		return fmt.Errorf("%w: %s", vector.ErrIndexNotFound, name)
	}
	ns, ok := idx.namespaces[namespace]
	if !ok {
		ns = make(map[string]vector.Record)
		idx.namespaces[namespace] = ns
	}
	for _, r := range records {
		if len(r.Values) != idx.spec.Dimension {
			return fmt.Errorf("%w: record %s", vector.ErrDimensionMismatch, r.ID)
		}
		ns[r.ID] = vector.Record{
			ID:       r.ID,
			Values:   append([]float32(nil), r.Values...),
			Metadata: copyMetadata(r.Metadata),
		}
	}
	return nil
}

func (b *Backend) Query(ctx context.Context, name string, req vector.QueryRequest) ([]vector.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	idx, ok := b.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vector.ErrIndexNotFound, name)
	}

	matches := make([]vector.Match, 0)
	for _, r := range idx.namespaces[req.Namespace] {
		if !matchesFilter(r.Metadata, req.Filter) {
			continue
		}
		matches = append(matches, vector.Match{
			ID:       r.ID,
			Score:    cosine(req.Vector, r.Values),
			Metadata: copyMetadata(r.Metadata),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if req.TopK >= 0 && len(matches) > req.TopK {
		matches = matches[:req.TopK]
	}
	return matches, nil
}

// Count reports how many records a namespace holds.
func (b *Backend) Count(name, namespace string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if idx, ok := b.indexes[name]; ok {
		return len(idx.namespaces[namespace])
	}
	return 0
}

func matchesFilter(md map[string]interface{}, filter map[string]string) bool {
	for k, want := range filter {
		if fmt.Sprint(md[k]) != want {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func copyMetadata(md map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
