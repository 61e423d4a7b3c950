package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Handler serves the JSON-RPC tool protocol over a single endpoint with
// SSE-framed responses.
type Handler struct {
	adapter *Adapter
	logger  *slog.Logger
}

// NewHandler creates the protocol handler around a tool adapter
func NewHandler(adapter *Adapter) *Handler {
	return &Handler{
		adapter: adapter,
		logger:  slog.Default().With("component", "mcp"),
	}
}

// Register mounts the protocol endpoint on the mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /mcp", h.handlePost)
	mux.HandleFunc("GET /mcp", h.handleGet)
}

// handleGet is the stream handshake: an empty SSE comment frame
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")
	if !strings.Contains(accept, "application/json") || !strings.Contains(accept, "text/event-stream") {
		writeJSONRPC(w, http.StatusNotAcceptable,
			errorResponse(nil, codeInvalidRequest, "Accept must include application/json and text/event-stream"))
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONRPC(w, http.StatusBadRequest, errorResponse(nil, codeParseError, "Parse error"))
		return
	}

	// Notifications are fire-and-forget: acknowledged, never answered
	if strings.HasPrefix(req.Method, "notifications/") {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var resp *JSONRPCResponse
	switch req.Method {
	case "initialize":
		resp = h.handleInitialize(&req)
	case "tools/list":
		resp = resultResponse(req.ID, map[string]interface{}{"tools": toolSchemas()})
	case "tools/call":
		resp = h.handleToolCall(r, &req)
	case "ping":
		resp = resultResponse(req.ID, map[string]interface{}{})
	default:
		resp = errorResponse(req.ID, codeMethodNotFound, "Method not found")
	}

	writeSSE(w, resp)
}

func (h *Handler) handleInitialize(req *JSONRPCRequest) *JSONRPCResponse {
	return resultResponse(req.ID, map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{
				"listChanged": false,
			},
		},
		"serverInfo": map[string]string{
			"name":    "relay",
			"version": "1.0.0",
		},
	})
}

func (h *Handler) handleToolCall(r *http.Request, req *JSONRPCRequest) *JSONRPCResponse {
	name, ok := req.Params["name"].(string)
	if !ok || name == "" {
		return errorResponse(req.ID, codeInvalidParams, "Invalid params: 'name' is required")
	}
	args, _ := req.Params["arguments"].(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}

	var result ToolResult
	switch name {
	case ToolCheckStatus:
		result = h.adapter.CheckStatus(r.Context(), args)
	case ToolPostStatus:
		result = h.adapter.PostStatus(r.Context(), args)
	default:
		return errorResponse(req.ID, codeInvalidParams, fmt.Sprintf("Unknown tool: %s", name))
	}

	return resultResponse(req.ID, result)
}

// writeSSE frames one JSON-RPC response as a server-sent event
func writeSSE(w http.ResponseWriter, resp *JSONRPCResponse) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	data, err := json.Marshal(resp)
	if err != nil {
		slog.Default().Warn("rpc response encode failed", "error", err)
		return
	}
	fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
}

// writeJSONRPC sends a plain JSON (non-SSE) protocol error
func writeJSONRPC(w http.ResponseWriter, status int, resp *JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
