package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"liveworkshop/backend/internal/middleware"
	"liveworkshop/backend/internal/vector"
)

const (
	DefaultThreshold   float32 = 0.7
	DefaultMaxContexts         = 5
	// MaxLimit bounds client supplied result counts.
	MaxLimit = 50
)

var ErrEmptyQuery = errors.New("query is empty")

// FailurePolicy decides what a retrieval call does when embedding or the
// vector query fails.
type FailurePolicy int

const (
	// FailOpen logs the failure and returns no results.
	FailOpen FailurePolicy = iota
	// FailClosed returns the failure to the caller.
	FailClosed
)

func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}

type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Index is satisfied by *vector.Handle.
type Index interface {
	Query(ctx context.Context, req vector.QueryRequest) ([]vector.Match, error)
}

// Snippet is one piece of session knowledge selected for a topic.
type Snippet struct {
	SourceLabel string  `json:"sourceLabel"`
	Text        string  `json:"text"`
	FileName    string  `json:"fileName"`
	ChunkIndex  int     `json:"chunkIndex"`
	Score       float32 `json:"score"`
}

// Format renders the snippet as "[Source: <fileName>]\n<content>".
func (s Snippet) Format() string {
	return s.SourceLabel + "\n" + s.Text
}

type Options struct {
	// Threshold is exclusive: only matches scoring above it are kept.
	// Zero or negative selects DefaultThreshold, so the gate cannot be
	// switched off by leaving it unset.
	Threshold          float32
	DefaultMaxContexts int
}

type Service struct {
	embedder Embedder
	index    Index
	logger   *QueryLogger
	opts     Options
}

func NewService(e Embedder, idx Index, l *QueryLogger, opts Options) *Service {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.DefaultMaxContexts <= 0 {
		opts.DefaultMaxContexts = DefaultMaxContexts
	}
	return &Service{embedder: e, index: idx, logger: l, opts: opts}
}

// ClampLimit caps n at MaxLimit. Non-positive values pass through and
// select the service default.
func ClampLimit(n int) int {
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// GetRelevantContext returns up to maxContexts labeled snippets for topic
// from the session's knowledge. It never fails: any error yields an empty
// list so the caller can fall back to a topic-only prompt.
func (s *Service) GetRelevantContext(ctx context.Context, topic, sessionID string, maxContexts int) []string {
	snippets, _ := s.Retrieve(ctx, topic, sessionID, maxContexts, FailOpen)
	out := make([]string, len(snippets))
	for i, sn := range snippets {
		out[i] = sn.Format()
	}
	return out
}

// Search is the fail-closed variant used where the caller must tell an
// empty result apart from a broken pipeline.
func (s *Service) Search(ctx context.Context, query, sessionID string, limit int) ([]Snippet, error) {
	return s.Retrieve(ctx, query, sessionID, limit, FailClosed)
}

func (s *Service) Retrieve(ctx context.Context, topic, sessionID string, maxContexts int, policy FailurePolicy) ([]Snippet, error) {
	start := time.Now()
	if maxContexts <= 0 {
		maxContexts = s.opts.DefaultMaxContexts
	}

	entry := QueryLogEntry{Query: topic, SessionID: sessionID, CorrelationID: middleware.GetCorrelationID(ctx)}
	defer func() {
		if s.logger != nil {
			entry.Duration = time.Since(start)
			s.logger.Log(entry)
		}
	}()

	snippets, candidates, err := s.retrieve(ctx, topic, sessionID, maxContexts)
	entry.Candidates = candidates
	if err != nil {
		entry.Degraded = true
		if policy == FailClosed {
			return nil, err
		}
		slog.WarnContext(ctx, "retrieval degraded", "session_id", sessionID, "policy", policy.String(), "error", err)
		return []Snippet{}, nil
	}

	entry.NumResults = len(snippets)
	return snippets, nil
}

func (s *Service) retrieve(ctx context.Context, topic, sessionID string, maxContexts int) ([]Snippet, int, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, 0, ErrEmptyQuery
	}
	if sessionID == "" {
		return nil, 0, vector.ErrNamespaceRequired
	}

	vec, err := s.embedder.EmbedQuery(ctx, topic)
	if err != nil {
		return nil, 0, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.index.Query(ctx, vector.QueryRequest{
		Vector:    vec,
		TopK:      maxContexts * 2,
		Namespace: sessionID,
		Filter:    map[string]string{"sessionId": sessionID},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("query index: %w", err)
	}

	kept := make([]vector.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score > s.opts.Threshold {
			kept = append(kept, m)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if len(kept) > maxContexts {
		kept = kept[:maxContexts]
	}

	snippets := make([]Snippet, 0, len(kept))
	for _, m := range kept {
		fileName := metadataString(m.Metadata, "fileName")
		if fileName == "" {
			fileName = "unknown"
		}
		snippets = append(snippets, Snippet{
			SourceLabel: "[Source: " + fileName + "]",
			Text:        metadataString(m.Metadata, "content"),
			FileName:    fileName,
			ChunkIndex:  metadataInt(m.Metadata, "chunkIndex"),
			Score:       m.Score,
		})
	}
	return snippets, len(matches), nil
}

func metadataString(md map[string]interface{}, key string) string {
	if v, ok := md[key].(string); ok {
		return v
	}
	return ""
}

func metadataInt(md map[string]interface{}, key string) int {
	switch v := md[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
