package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"liveworkshop/backend/internal/middleware"
)

func TestContextHandler_Handle(t *testing.T) {
	var buf bytes.Buffer
	jsonHandler := slog.NewJSONHandler(&buf, nil)
	h := NewContextHandler(jsonHandler)
	logger := slog.New(h)

	ctx := context.Background()
	ctx = middleware.WithCorrelationID(ctx, "test-correlation-id")

	logger.InfoContext(ctx, "test message")

	var logMap map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logMap); err != nil {
		t.Fatalf("failed to unmarshal log: %v", err)
	}

	if logMap["correlation_id"] != "test-correlation-id" {
		t.Errorf("expected correlation_id 'test-correlation-id', got %v", logMap["correlation_id"])
	}
}

func TestContextHandler_WithAttrsKeepsCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo).With("component", "ingest")

	ctx := middleware.WithCorrelationID(context.Background(), "abc")
	logger.InfoContext(ctx, "file processed")

	var logMap map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logMap); err != nil {
		t.Fatalf("failed to unmarshal log: %v", err)
	}
	if logMap["correlation_id"] != "abc" {
		t.Errorf("expected correlation_id 'abc', got %v", logMap["correlation_id"])
	}
	if logMap["component"] != "ingest" {
		t.Errorf("expected component 'ingest', got %v", logMap["component"])
	}
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelWarn).Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered, got %q", buf.String())
	}
}

func TestContextHandler_SessionFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)
	ctx := middleware.WithSessionID(middleware.WithCorrelationID(context.Background(), "abc"), "sessA")

	logger.InfoContext(ctx, "context requested")
	var logMap map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logMap); err != nil {
		t.Fatalf("failed to unmarshal log: %v", err)
	}
	if logMap["session_id"] != "sessA" {
		t.Errorf("expected session_id 'sessA', got %v", logMap["session_id"])
	}

	buf.Reset()
	logger.InfoContext(ctx, "file processed", "session_id", "sessB")
	if n := bytes.Count(buf.Bytes(), []byte(`"session_id"`)); n != 1 {
		t.Errorf("expected one session_id key, got %d in %s", n, buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"session_id":"sessB"`)) {
		t.Errorf("explicit session_id should win, got %s", buf.String())
	}
}
