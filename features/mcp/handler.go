package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"liveworkshop/backend/features/document"
	"liveworkshop/backend/internal/ingest"
	"liveworkshop/backend/internal/middleware"
	"liveworkshop/backend/internal/retrieval"
)

type Retriever interface {
	GetRelevantContext(ctx context.Context, topic, sessionID string, maxContexts int) []string
	Search(ctx context.Context, query, sessionID string, limit int) ([]retrieval.Snippet, error)
}

type DocumentCatalog interface {
	List(ctx context.Context, sessionID string) ([]document.Document, error)
	Get(ctx context.Context, sessionID, fileName string) (*ingest.ProcessedDocument, error)
}

// Handler serves session retrieval as MCP tools, over plain JSON-RPC POST
// and over the SSE transport.
type Handler struct {
	retriever Retriever
	catalog   DocumentCatalog
	streams   map[string]chan string // stream id -> serialized JSON-RPC responses
	mu        sync.RWMutex
}

func NewHandler(r Retriever, c DocumentCatalog) *Handler {
	return &Handler{
		retriever: r,
		catalog:   c,
		streams:   make(map[string]chan string),
	}
}

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

const (
	ToolSessionContext = "session_context"
	ToolSessionSearch  = "session_search"
	ToolListDocuments  = "list_documents"
	ToolReadDocument   = "read_document"
)

type contextArgs struct {
	SessionID   string `json:"session_id"`
	Topic       string `json:"topic"`
	MaxContexts int    `json:"max_contexts"`
}

type searchArgs struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	Limit     int    `json:"limit"`
}

type documentArgs struct {
	SessionID string `json:"session_id"`
	FileName  string `json:"file_name"`
}

func sessionProperty() map[string]string {
	return map[string]string{"type": "string", "description": "The live session whose uploads are searched"}
}

func tools() []Tool {
	return []Tool{
		{
			Name: ToolSessionContext,
			Description: `Returns the uploaded material most relevant to a topic, each snippet prefixed with [Source: <file>].
An empty result means nothing passed the similarity threshold; answer from the topic alone.`,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id":   sessionProperty(),
					"topic":        map[string]string{"type": "string", "description": "What the presenter is about to talk about"},
					"max_contexts": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": retrieval.MaxLimit},
				},
				"required": []string{"session_id", "topic"},
			},
		},
		{
			Name:        ToolSessionSearch,
			Description: "Scored similarity search over a session's uploads. Fails instead of returning an empty list when the index is unavailable.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionProperty(),
					"query":      map[string]string{"type": "string"},
					"limit":      map[string]interface{}{"type": "integer", "minimum": 1, "maximum": retrieval.MaxLimit},
				},
				"required": []string{"session_id", "query"},
			},
		},
		{
			Name:        ToolListDocuments,
			Description: "Lists the processed documents of a session.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"session_id": sessionProperty()},
				"required":   []string{"session_id"},
			},
		},
		{
			Name:        ToolReadDocument,
			Description: "Returns every chunk of one processed document, in order. Use it when a snippet is not enough.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionProperty(),
					"file_name":  map[string]string{"type": "string"},
				},
				"required": []string{"session_id", "file_name"},
			},
		},
	}
}

// processRequest returns nil for notifications.
func (h *Handler) processRequest(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
				"serverInfo":      map[string]interface{}{"name": "workshop-context", "version": "1.0.0"},
			},
		}
	case "notifications/initialized":
		return nil
	case "ping":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{}}
	case "tools/list":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ListToolsResult{Tools: tools()}}
	case "tools/call":
		var params CallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			slog.WarnContext(ctx, "invalid params structure", "error", err)
			return errorResponse(req.ID, ErrInvalidParams, "Invalid params")
		}
		return h.callTool(ctx, req.ID, params)
	}

	slog.WarnContext(ctx, "unknown jsonrpc method", "method", req.Method)
	return errorResponse(req.ID, ErrMethodNotFound, "Method not found")
}

func (h *Handler) callTool(ctx context.Context, id interface{}, params CallParams) *JSONRPCResponse {
	var (
		text string
		err  error
	)
	switch params.Name {
	case ToolSessionContext:
		var args contextArgs
		if err := decodeArgs(params.Arguments, &args); err != nil {
			return errorResponse(id, ErrInvalidParams, err.Error())
		}
		if strings.TrimSpace(args.Topic) == "" {
			return errorResponse(id, ErrInvalidParams, "topic is required")
		}
		text = h.sessionContext(ctx, args)
	case ToolSessionSearch:
		var args searchArgs
		if err := decodeArgs(params.Arguments, &args); err != nil {
			return errorResponse(id, ErrInvalidParams, err.Error())
		}
		if strings.TrimSpace(args.Query) == "" {
			return errorResponse(id, ErrInvalidParams, "query is required")
		}
		text, err = h.sessionSearch(ctx, args)
	case ToolListDocuments:
		var args documentArgs
		if err := decodeArgs(params.Arguments, &args); err != nil {
			return errorResponse(id, ErrInvalidParams, err.Error())
		}
		text, err = h.listDocuments(ctx, args.SessionID)
	case ToolReadDocument:
		var args documentArgs
		if err := decodeArgs(params.Arguments, &args); err != nil {
			return errorResponse(id, ErrInvalidParams, err.Error())
		}
		if args.FileName == "" {
			return errorResponse(id, ErrInvalidParams, "file_name is required")
		}
		text, err = h.readDocument(ctx, args)
	default:
		slog.WarnContext(ctx, "tool not found", "tool", params.Name)
		return errorResponse(id, ErrMethodNotFound, "Method not found: "+params.Name)
	}

	if err != nil {
		slog.ErrorContext(ctx, "tool execution failed", "tool", params.Name, "error", err)
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      id,
			Result: ToolResult{
				Content: []ToolContent{{Type: "text", Text: "Error: " + err.Error()}},
				IsError: true,
			},
		}
	}

	slog.InfoContext(ctx, "tool execution completed", "tool", params.Name)
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  ToolResult{Content: []ToolContent{{Type: "text", Text: text}}},
	}
}

// decodeArgs also validates the session id every tool takes.
func decodeArgs(raw json.RawMessage, v interface{ session() string }) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.New("invalid arguments")
	}
	return ingest.ValidateSessionID(v.session())
}

func (a *contextArgs) session() string  { return a.SessionID }
func (a *searchArgs) session() string   { return a.SessionID }
func (a *documentArgs) session() string { return a.SessionID }

func (h *Handler) sessionContext(ctx context.Context, args contextArgs) string {
	contexts := h.retriever.GetRelevantContext(ctx, args.Topic, args.SessionID, retrieval.ClampLimit(args.MaxContexts))
	if len(contexts) == 0 {
		return "No relevant session material found."
	}
	return strings.Join(contexts, "\n\n---\n\n")
}

func (h *Handler) sessionSearch(ctx context.Context, args searchArgs) (string, error) {
	results, err := h.retriever.Search(ctx, args.Query, args.SessionID, retrieval.ClampLimit(args.Limit))
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	for i, res := range results {
		fmt.Fprintf(&b, "Result %d (Score: %.2f):\n", i+1, res.Score)
		fmt.Fprintf(&b, "File: %s (chunk %d)\n", res.FileName, res.ChunkIndex)
		fmt.Fprintf(&b, "Content:\n%s\n\n---\n", res.Text)
	}
	b.WriteString("\nUse read_document(session_id, file_name) to read a whole file.\n")
	return b.String(), nil
}

func (h *Handler) listDocuments(ctx context.Context, sessionID string) (string, error) {
	docs, err := h.catalog.List(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "No documents found.", nil
	}

	type simpleDocument struct {
		FileName    string `json:"file_name"`
		FileType    string `json:"file_type"`
		TotalChunks int    `json:"total_chunks"`
		Indexed     bool   `json:"indexed"`
	}
	out := make([]simpleDocument, len(docs))
	for i, d := range docs {
		out[i] = simpleDocument{FileName: d.FileName, FileType: d.FileType, TotalChunks: d.TotalChunks, Indexed: d.IndexedAt != nil}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal documents: %w", err)
	}
	return string(data), nil
}

func (h *Handler) readDocument(ctx context.Context, args documentArgs) (string, error) {
	doc, err := h.catalog.Get(ctx, args.SessionID, args.FileName)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s (%d chunks)\n\n", doc.FileName, doc.TotalChunks)
	for _, c := range doc.Chunks {
		if c.Metadata.PageNumber != nil {
			fmt.Fprintf(&b, "[Page %d]\n", *c.Metadata.PageNumber)
		}
		b.WriteString(c.Content)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func errorResponse(id interface{}, code int, message string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slog.InfoContext(ctx, "mcp request received", "method", r.Method, "path", r.URL.Path)

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(ctx, w, http.StatusOK, errorResponse(nil, ErrParse, "Parse error"))
		return
	}

	resp := h.processRequest(ctx, req)
	if resp == nil {
		// Notifications get no JSON-RPC reply.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, resp)
}

// HandleSSE opens an event stream and announces the endpoint that accepts
// the stream's messages.
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	streamID := uuid.New().String()
	msgChan := make(chan string, 100)

	h.mu.Lock()
	h.streams[streamID] = msgChan
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.streams, streamID)
		close(msgChan)
		h.mu.Unlock()
		slog.Info("sse stream ended", "stream_id", streamID)
	}()

	slog.Info("sse stream started", "stream_id", streamID)

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s/mcp/messages?sessionId=%s", scheme, r.Host, streamID)
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", html.EscapeString(endpoint))
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg := <-msgChan:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// HandleMessage accepts a JSON-RPC message for an open stream. The reply is
// delivered on the stream, not in the POST response.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	streamID := r.URL.Query().Get("sessionId")
	if streamID == "" {
		h.writeHTTPError(ctx, w, http.StatusBadRequest, "VALIDATION_ERROR", "Missing sessionId")
		return
	}

	h.mu.RLock()
	_, exists := h.streams[streamID]
	h.mu.RUnlock()
	if !exists {
		slog.WarnContext(ctx, "stream not found", "stream_id", streamID)
		h.writeHTTPError(ctx, w, http.StatusNotFound, "NOT_FOUND", "Session not found")
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeHTTPError(ctx, w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON")
		return
	}

	w.WriteHeader(http.StatusAccepted)

	bgCtx := context.WithoutCancel(ctx)
	go func() {
		resp := h.processRequest(bgCtx, req)
		if resp == nil {
			return
		}
		data, err := json.Marshal(resp)
		if err != nil {
			slog.ErrorContext(bgCtx, "failed to marshal response", "error", err)
			return
		}
		h.deliver(bgCtx, streamID, string(data))
	}()
}

// deliver holds the read lock so the stream cannot be closed mid-send.
func (h *Handler) deliver(ctx context.Context, streamID, msg string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msgChan, ok := h.streams[streamID]
	if !ok {
		slog.WarnContext(ctx, "stream closed before reply", "stream_id", streamID)
		return
	}
	select {
	case msgChan <- msg:
	default:
		slog.WarnContext(ctx, "stream buffer full, dropping message", "stream_id", streamID)
	}
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeHTTPError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(ctx, w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
