package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type key int

const (
	CorrelationKey key = iota
	SessionKey
)

// HeaderCorrelationID carries the id across the API and the index worker.
const HeaderCorrelationID = "X-Correlation-ID"

// maxCorrelationIDLen bounds client supplied ids; longer ones are replaced.
const maxCorrelationIDLen = 128

// CorrelationID tags each request with a correlation id and, for
// /sessions/{id}/... routes, the session it addresses. Both go into the
// request context and the request log lines.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderCorrelationID)
		if id == "" || len(id) > maxCorrelationIDLen {
			id = uuid.New().String()
		}
		w.Header().Set(HeaderCorrelationID, id)

		ctx := WithCorrelationID(r.Context(), id)
		attrs := []any{"method", r.Method, "path", r.URL.Path, "correlation_id", id}
		if sid := SessionFromPath(r.URL.Path); sid != "" {
			ctx = WithSessionID(ctx, sid)
			attrs = append(attrs, "session_id", sid)
		}

		slog.Info("request received", attrs...) // #nosec G706 -- r.URL.Path is parsed by Go's net/http
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		slog.Info("request completed", append(attrs, "status", rec.status, "duration", time.Since(start))...) // #nosec G706
	})
}

// SessionFromPath returns the {id} segment of /sessions/{id}/..., or "".
func SessionFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/sessions/")
	if !ok {
		return ""
	}
	sid, _, _ := strings.Cut(rest, "/")
	return sid
}

func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationKey).(string); ok {
		return id
	}
	return "unknown"
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationKey, id)
}

// GetSessionID returns the session tagged on ctx, or "".
func GetSessionID(ctx context.Context) string {
	sid, _ := ctx.Value(SessionKey).(string)
	return sid
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionKey, sessionID)
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps the MCP event stream working behind the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
