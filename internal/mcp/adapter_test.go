package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rohankatakam/relay/internal/config"
	"github.com/rohankatakam/relay/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	path    string
	headers http.Header
	body    map[string]interface{}
}

// fakeService scripts internal endpoint responses and records every call
type fakeService struct {
	mu      sync.Mutex
	calls   []recordedCall
	respond func(call recordedCall) (int, interface{})
}

func (f *fakeService) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)

		call := recordedCall{path: r.URL.Path, headers: r.Header.Clone(), body: body}
		f.mu.Lock()
		f.calls = append(f.calls, call)
		f.mu.Unlock()

		status, payload := f.respond(call)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(payload)
	})
}

func newTestAdapter(t *testing.T, svc *fakeService) *Adapter {
	ts := httptest.NewServer(svc.handler())
	t.Cleanup(ts.Close)
	return NewAdapter(config.AgentConfig{InternalURL: ts.URL}, ":0")
}

func structured(t *testing.T, result ToolResult) map[string]interface{} {
	t.Helper()
	body, ok := result.StructuredContent.(map[string]interface{})
	require.True(t, ok, "structuredContent is not an object")
	return body
}

func TestCallSetsIdentityHeadersAndDefaults(t *testing.T) {
	svc := &fakeService{respond: func(recordedCall) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"status": "OK"}
	}}
	adapter := newTestAdapter(t, svc)

	result := adapter.CheckStatus(context.Background(), map[string]interface{}{
		"repo_url":   "https://github.com/acme/web",
		"file_paths": []interface{}{"src/a.ts"},
		"agent_head": "HEAD",
		"username":   "  Alice  ",
	})

	require.Len(t, svc.calls, 1)
	call := svc.calls[0]
	assert.Equal(t, "/check_status", call.path)
	assert.Equal(t, "Alice", call.headers.Get(identity.HeaderUser))
	assert.Equal(t, "Alice", call.headers.Get(identity.HeaderUsername))
	assert.Equal(t, "master", call.body["branch"], "omitted branch defaults to master")
	_, present := call.body["username"]
	assert.False(t, present, "username travels as headers, not body")

	assert.Equal(t, "OK", structured(t, result)["status"])
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	assert.Contains(t, result.Content[0].Text, `"status"`)
}

func TestCallFallsBackToMainOnce(t *testing.T) {
	svc := &fakeService{}
	svc.respond = func(call recordedCall) (int, interface{}) {
		if call.body["branch"] == "master" {
			return http.StatusInternalServerError, map[string]interface{}{
				"error":   "Failed to resolve branch head",
				"details": `branch "master" not found in acme/web`,
			}
		}
		return http.StatusOK, map[string]interface{}{"status": "OK", "repo_head": "HEAD"}
	}
	adapter := newTestAdapter(t, svc)

	result := adapter.CheckStatus(context.Background(), map[string]interface{}{
		"repo_url":   "https://github.com/acme/web",
		"file_paths": []interface{}{"src/a.ts"},
		"agent_head": "HEAD",
	})

	require.Len(t, svc.calls, 2)
	assert.Equal(t, "master", svc.calls[0].body["branch"])
	assert.Equal(t, "main", svc.calls[1].body["branch"])
	assert.Equal(t, "OK", structured(t, result)["status"])
}

func TestCallNoFallbackWhenBranchProvided(t *testing.T) {
	svc := &fakeService{}
	svc.respond = func(recordedCall) (int, interface{}) {
		return http.StatusInternalServerError, map[string]interface{}{
			"error":   "Failed to resolve branch head",
			"details": `branch "release" not found in acme/web`,
		}
	}
	adapter := newTestAdapter(t, svc)

	result := adapter.CheckStatus(context.Background(), map[string]interface{}{
		"repo_url":   "https://github.com/acme/web",
		"branch":     "release",
		"file_paths": []interface{}{"src/a.ts"},
		"agent_head": "HEAD",
	})

	assert.Len(t, svc.calls, 1, "an agent-supplied branch is never rewritten")

	body := structured(t, result)
	assert.Equal(t, "OFFLINE", body["status"])
	assert.Equal(t, "unknown", body["repo_head"])
	assert.Equal(t, []interface{}{`HTTP_ERROR: branch "release" not found in acme/web`}, body["warnings"])

	orch := body["orchestration"].(map[string]interface{})
	assert.Equal(t, "STOP", orch["action"])
	assert.Equal(t, `check_status failed (500): branch "release" not found in acme/web`, orch["reason"])
}

func TestRateLimitedCheckEnvelope(t *testing.T) {
	svc := &fakeService{respond: func(recordedCall) (int, interface{}) {
		return http.StatusTooManyRequests, map[string]interface{}{
			"error":          "Repository host rate limit exceeded",
			"retry_after_ms": 1200,
		}
	}}
	adapter := newTestAdapter(t, svc)

	result := adapter.CheckStatus(context.Background(), map[string]interface{}{
		"repo_url":   "https://github.com/acme/web",
		"branch":     "main",
		"file_paths": []interface{}{"src/a.ts"},
		"agent_head": "HEAD",
	})

	body := structured(t, result)
	assert.Equal(t, "OFFLINE", body["status"])
	assert.Equal(t, "unknown", body["repo_head"])
	assert.Equal(t, map[string]interface{}{}, body["locks"])
	assert.Equal(t, []interface{}{"RATE_LIMITED: Repository host quota exhausted"}, body["warnings"])

	orch := body["orchestration"].(map[string]interface{})
	assert.Equal(t, "orchestration_command", orch["type"])
	assert.Equal(t, "STOP", orch["action"])
	assert.Equal(t, "Rate limited - retry after 1200 ms", orch["reason"])
}

func TestRateLimitedPostEnvelope(t *testing.T) {
	svc := &fakeService{respond: func(recordedCall) (int, interface{}) {
		return http.StatusTooManyRequests, map[string]interface{}{
			"error":          "Repository host rate limit exceeded",
			"retry_after_ms": 1200,
		}
	}}
	adapter := newTestAdapter(t, svc)

	result := adapter.PostStatus(context.Background(), map[string]interface{}{
		"repo_url":   "https://github.com/acme/web",
		"branch":     "main",
		"file_paths": []interface{}{"src/a.ts"},
		"status":     "WRITING",
		"agent_head": "HEAD",
	})

	body := structured(t, result)
	assert.Equal(t, false, body["success"])
	_, hasStatus := body["status"]
	assert.False(t, hasStatus, "post failures carry no status field")
	_, hasWarnings := body["warnings"]
	assert.False(t, hasWarnings, "post failures carry no warnings")

	orch := body["orchestration"].(map[string]interface{})
	assert.Equal(t, "STOP", orch["action"])
	assert.Equal(t, "Rate limited - retry later", orch["reason"])
}

func TestRejectedCheckEnvelope(t *testing.T) {
	svc := &fakeService{respond: func(recordedCall) (int, interface{}) {
		return http.StatusBadRequest, map[string]interface{}{"error": "Missing required fields"}
	}}
	adapter := newTestAdapter(t, svc)

	result := adapter.CheckStatus(context.Background(), map[string]interface{}{
		"repo_url":   "https://github.com/acme/web",
		"branch":     "main",
		"file_paths": []interface{}{"src/a.ts"},
		"agent_head": "HEAD",
	})

	body := structured(t, result)
	assert.Equal(t, "OFFLINE", body["status"])
	assert.Equal(t, "unknown", body["repo_head"])
	assert.Equal(t, []interface{}{"REQUEST_REJECTED: Missing required fields"}, body["warnings"])

	orch := body["orchestration"].(map[string]interface{})
	assert.Equal(t, "STOP", orch["action"])
	assert.Equal(t, "Validation error: Missing required fields", orch["reason"])
}

func TestValidationErrorBecomesStop(t *testing.T) {
	svc := &fakeService{respond: func(recordedCall) (int, interface{}) {
		return http.StatusBadRequest, map[string]interface{}{"error": "Missing required fields"}
	}}
	adapter := newTestAdapter(t, svc)

	result := adapter.PostStatus(context.Background(), map[string]interface{}{
		"repo_url": "https://github.com/acme/web",
		"branch":   "main",
	})

	body := structured(t, result)
	assert.Equal(t, false, body["success"])
	_, hasStatus := body["status"]
	assert.False(t, hasStatus, "post failures carry no status field")

	orch := body["orchestration"].(map[string]interface{})
	assert.Equal(t, "STOP", orch["action"])
	assert.Equal(t, "Validation error: Missing required fields", orch["reason"])
}

func TestNetworkFailureEnvelopes(t *testing.T) {
	// Point at a closed server so every call fails at the transport
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()
	adapter := NewAdapter(config.AgentConfig{InternalURL: ts.URL}, ":0")

	args := map[string]interface{}{
		"repo_url":   "https://github.com/acme/web",
		"branch":     "main",
		"file_paths": []interface{}{"src/a.ts"},
		"agent_head": "HEAD",
	}

	check := structured(t, adapter.CheckStatus(context.Background(), args))
	assert.Equal(t, "OFFLINE", check["status"])
	assert.Equal(t, "unknown", check["repo_head"])
	assert.Equal(t, []interface{}{"OFFLINE_MODE: Coordination service unreachable"}, check["warnings"])
	checkOrch := check["orchestration"].(map[string]interface{})
	assert.Equal(t, "SWITCH_TASK", checkOrch["action"])
	assert.Equal(t, "System Offline", checkOrch["reason"])

	post := structured(t, adapter.PostStatus(context.Background(), args))
	assert.Equal(t, false, post["success"])
	_, hasStatus := post["status"]
	assert.False(t, hasStatus, "post failures carry no status field")
	postOrch := post["orchestration"].(map[string]interface{})
	assert.Equal(t, "STOP", postOrch["action"])
	assert.Equal(t, "Coordination service offline - cannot acquire lock", postOrch["reason"])
}

func TestCanonicalRepoURLOverride(t *testing.T) {
	svc := &fakeService{respond: func(recordedCall) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"status": "OK"}
	}}
	ts := httptest.NewServer(svc.handler())
	t.Cleanup(ts.Close)
	adapter := NewAdapter(config.AgentConfig{
		InternalURL:      ts.URL,
		CanonicalRepoURL: "https://github.com/acme/canonical",
	}, ":0")

	adapter.CheckStatus(context.Background(), map[string]interface{}{
		"repo_url":   "https://github.com/evil/spoof",
		"branch":     "main",
		"file_paths": []interface{}{"src/a.ts"},
		"agent_head": "HEAD",
	})

	require.Len(t, svc.calls, 1)
	assert.Equal(t, "https://github.com/acme/canonical", svc.calls[0].body["repo_url"])
}
