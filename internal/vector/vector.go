package vector

import (
	"context"
	"errors"
)

var (
	ErrIndexNotFound     = errors.New("index not found")
	ErrIndexUnavailable  = errors.New("index unavailable")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrNamespaceRequired = errors.New("namespace is required")
	ErrQueryTimeout      = errors.New("vector query timed out")
	ErrQueryFailure      = errors.New("vector query failed")
)

// IndexSpec describes the index to get or create. Cloud and Region are
// passed through to backends that place indexes, and ignored otherwise.
type IndexSpec struct {
	Name      string
	Dimension int
	Metric    string
	Cloud     string
	Region    string
}

type IndexDescription struct {
	Name      string
	Dimension int
	Metric    string
	Ready     bool
}

// Index is a resolved handle on an existing, ready index.
type Index struct {
	Name      string
	Dimension int
}

type Record struct {
	ID       string                 `json:"id"`
	Values   []float32              `json:"values"`
	Metadata map[string]interface{} `json:"metadata"`
}

type Match struct {
	ID       string                 `json:"id"`
	Score    float32                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
}

type QueryRequest struct {
	Vector    []float32
	TopK      int
	Namespace string
	// Filter restricts matches to records whose metadata equals every entry.
	Filter map[string]string
}

// Backend is a vector database. Matches are returned best first.
type Backend interface {
	DescribeIndex(ctx context.Context, name string) (*IndexDescription, error)
	CreateIndex(ctx context.Context, spec IndexSpec) error
	Upsert(ctx context.Context, index, namespace string, records []Record) error
	Query(ctx context.Context, index string, req QueryRequest) ([]Match, error)
}
