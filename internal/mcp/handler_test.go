package mcp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rohankatakam/relay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() http.Handler {
	adapter := NewAdapter(config.AgentConfig{InternalURL: "http://127.0.0.1:0"}, ":0")
	mux := http.NewServeMux()
	NewHandler(adapter).Register(mux)
	return mux
}

func rpcRequest(t *testing.T, handler http.Handler, accept string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// decodeSSE unwraps an "event: message" frame into the JSON-RPC response
func decodeSSE(t *testing.T, rec *httptest.ResponseRecorder) JSONRPCResponse {
	t.Helper()

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "event: message\ndata: "), "not an SSE message frame: %q", body)
	require.True(t, strings.HasSuffix(body, "\n\n"))

	payload := strings.TrimSuffix(strings.TrimPrefix(body, "event: message\ndata: "), "\n\n")
	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal([]byte(payload), &resp))
	return resp
}

const fullAccept = "application/json, text/event-stream"

func TestRejectsIncompleteAccept(t *testing.T) {
	handler := newTestHandler()

	for _, accept := range []string{"", "application/json", "text/event-stream", "*/*"} {
		t.Run("accept="+accept, func(t *testing.T) {
			rec := rpcRequest(t, handler, accept, JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "ping"})
			require.Equal(t, http.StatusNotAcceptable, rec.Code)

			var resp JSONRPCResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, codeInvalidRequest, resp.Error.Code)
		})
	}
}

func TestInitialize(t *testing.T) {
	handler := newTestHandler()

	rec := rpcRequest(t, handler, fullAccept, JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "initialize"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	resp := decodeSSE(t, rec)
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]interface{})
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])
	assert.Contains(t, result, "capabilities")
	assert.Contains(t, result, "serverInfo")
}

func TestToolsList(t *testing.T) {
	handler := newTestHandler()

	rec := rpcRequest(t, handler, fullAccept, JSONRPCRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
	resp := decodeSSE(t, rec)
	require.Nil(t, resp.Error)

	tools := resp.Result.(map[string]interface{})["tools"].([]interface{})
	require.Len(t, tools, 2)

	names := []string{
		tools[0].(map[string]interface{})["name"].(string),
		tools[1].(map[string]interface{})["name"].(string),
	}
	assert.ElementsMatch(t, []string{ToolCheckStatus, ToolPostStatus}, names)
}

func TestPing(t *testing.T) {
	handler := newTestHandler()

	rec := rpcRequest(t, handler, fullAccept, JSONRPCRequest{JSONRPC: "2.0", ID: 3, Method: "ping"})
	resp := decodeSSE(t, rec)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]interface{}{}, resp.Result)
}

func TestNotificationsAcknowledgedWithoutBody(t *testing.T) {
	handler := newTestHandler()

	rec := rpcRequest(t, handler, fullAccept, JSONRPCRequest{JSONRPC: "2.0", Method: "notifications/initialized"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestUnknownMethod(t *testing.T) {
	handler := newTestHandler()

	rec := rpcRequest(t, handler, fullAccept, JSONRPCRequest{JSONRPC: "2.0", ID: 4, Method: "resources/list"})
	resp := decodeSSE(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestGetHandshake(t *testing.T) {
	handler := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, ": connected\n\n", rec.Body.String())
}
