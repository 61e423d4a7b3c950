package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rohankatakam/relay/internal/config"
	"github.com/rohankatakam/relay/internal/identity"
	"github.com/rohankatakam/relay/internal/orchestrate"
)

// Tool names exposed over the protocol
const (
	ToolCheckStatus = "check_status"
	ToolPostStatus  = "post_status"
)

// callTimeout bounds one internal endpoint call
const callTimeout = 5 * time.Second

// defaultBranch is tried first when the agent omits a branch; fallbackBranch
// is tried exactly once if that resolves to a missing branch.
const (
	defaultBranch  = "master"
	fallbackBranch = "main"
)

// Adapter translates tool calls into internal plain-JSON endpoint calls.
// Infrastructure failures never surface as protocol errors: they become a
// constant orchestration envelope so agents always see the same shape.
type Adapter struct {
	baseURL          string
	canonicalRepoURL string
	client           *http.Client
	logger           *slog.Logger
}

// NewAdapter creates a tool adapter calling the service at addr, unless the
// agent config points somewhere else.
func NewAdapter(cfg config.AgentConfig, addr string) *Adapter {
	baseURL := cfg.InternalURL
	if baseURL == "" {
		host := addr
		if strings.HasPrefix(host, ":") {
			host = "127.0.0.1" + host
		}
		baseURL = "http://" + host
	}
	return &Adapter{
		baseURL:          strings.TrimRight(baseURL, "/"),
		canonicalRepoURL: cfg.CanonicalRepoURL,
		client:           &http.Client{Timeout: callTimeout},
		logger:           slog.Default().With("component", "mcp_adapter"),
	}
}

// CheckStatus runs the check_status tool
func (a *Adapter) CheckStatus(ctx context.Context, args map[string]interface{}) ToolResult {
	return a.call(ctx, "/check_status", args, true)
}

// PostStatus runs the post_status tool
func (a *Adapter) PostStatus(ctx context.Context, args map[string]interface{}) ToolResult {
	return a.call(ctx, "/post_status", args, false)
}

func (a *Adapter) call(ctx context.Context, endpoint string, args map[string]interface{}, isCheck bool) ToolResult {
	username := identity.Normalize(stringArg(args, "username"))

	body := make(map[string]interface{}, len(args))
	for k, v := range args {
		if k == "username" {
			continue
		}
		body[k] = v
	}
	if a.canonicalRepoURL != "" {
		body["repo_url"] = a.canonicalRepoURL
	}

	branchProvided := stringArg(args, "branch") != ""
	if !branchProvided {
		body["branch"] = defaultBranch
	}

	result, branchMiss := a.doCall(ctx, endpoint, username, body, isCheck)
	if branchMiss && !branchProvided {
		body["branch"] = fallbackBranch
		result, _ = a.doCall(ctx, endpoint, username, body, isCheck)
	}
	return result
}

// doCall performs one internal call. The second return reports a
// branch-not-found signal so the caller can decide on the single retry.
func (a *Adapter) doCall(ctx context.Context, endpoint, username string, body map[string]interface{}, isCheck bool) (ToolResult, bool) {
	payload, err := json.Marshal(body)
	if err != nil {
		return a.unexpectedFailure(isCheck, "failed to encode request"), false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return a.unexpectedFailure(isCheck, "failed to build request"), false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identity.HeaderUser, username)
	req.Header.Set(identity.HeaderUsername, username)

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("internal call failed", "endpoint", endpoint, "error", err)
		return a.offlineFailure(isCheck), false
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return a.unexpectedFailure(isCheck, "failed to read response"), false
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		reason := "Rate limited - retry later"
		if !isCheck {
			return a.postFailure(stopCommand(reason)), false
		}
		if ms, ok := retryAfterMs(raw); ok {
			reason = fmt.Sprintf("Rate limited - retry after %d ms", ms)
		}
		return a.checkFailure("RATE_LIMITED: Repository host quota exhausted", stopCommand(reason)), false

	case resp.StatusCode == http.StatusBadRequest:
		details := extractErrorDetails(raw, resp.StatusCode)
		cmd := stopCommand(fmt.Sprintf("Validation error: %s", details))
		if isCheck {
			return a.checkFailure(fmt.Sprintf("REQUEST_REJECTED: %s", details), cmd), false
		}
		return a.postFailure(cmd), false

	case resp.StatusCode >= 400:
		details := extractErrorDetails(raw, resp.StatusCode)
		tool := ToolPostStatus
		if isCheck {
			tool = ToolCheckStatus
		}
		cmd := stopCommand(fmt.Sprintf("%s failed (%d): %s", tool, resp.StatusCode, details))
		if isCheck {
			return a.checkFailure(fmt.Sprintf("HTTP_ERROR: %s", details), cmd), isBranchNotFound(details)
		}
		return a.postFailure(cmd), isBranchNotFound(details)

	default:
		var parsed interface{}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return a.unexpectedFailure(isCheck, "unparsable response from service"), false
		}
		return toolResultFrom(parsed, raw), false
	}
}

// offlineFailure is the envelope for transport-level failures. Checks get
// SWITCH_TASK (the agent can do something else); posts get STOP (state is
// unknown mid-write).
func (a *Adapter) offlineFailure(isCheck bool) ToolResult {
	if isCheck {
		return a.checkFailure("OFFLINE_MODE: Coordination service unreachable",
			orchestrate.New(orchestrate.ActionSwitchTask, "", "System Offline"))
	}
	return a.postFailure(stopCommand("Coordination service offline - cannot acquire lock"))
}

func (a *Adapter) unexpectedFailure(isCheck bool, msg string) ToolResult {
	if isCheck {
		return a.checkFailure("UNEXPECTED_ERROR: "+msg,
			stopCommand("Unexpected error while checking status"))
	}
	return a.postFailure(stopCommand("Error: " + msg))
}

// checkFailure builds the constant check envelope for any failure: status
// OFFLINE, an unknown head, an empty lock table, and exactly one warning.
func (a *Adapter) checkFailure(warning string, cmd orchestrate.Command) ToolResult {
	return failureEnvelope(map[string]interface{}{
		"status":        "OFFLINE",
		"repo_head":     "unknown",
		"locks":         map[string]interface{}{},
		"warnings":      []string{warning},
		"orchestration": cmd,
	})
}

// postFailure carries no status field: post responses only ever report
// success plus the next command.
func (a *Adapter) postFailure(cmd orchestrate.Command) ToolResult {
	return failureEnvelope(map[string]interface{}{
		"success":       false,
		"orchestration": cmd,
	})
}

func stopCommand(reason string) orchestrate.Command {
	return orchestrate.New(orchestrate.ActionStop, "", reason)
}

func failureEnvelope(body map[string]interface{}) ToolResult {
	// Round-trip so structuredContent carries plain JSON types, same as the
	// success path.
	raw, _ := json.Marshal(body)
	var generic map[string]interface{}
	_ = json.Unmarshal(raw, &generic)
	return toolResultFrom(generic, raw)
}

func toolResultFrom(structured interface{}, raw []byte) ToolResult {
	return ToolResult{
		Content:           []ToolContent{{Type: "text", Text: string(raw)}},
		StructuredContent: structured,
	}
}

// extractErrorDetails pulls the most specific message out of an error body,
// preferring details over error over reason.
func extractErrorDetails(raw []byte, statusCode int) string {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, key := range []string{"details", "error", "reason"} {
			if v, ok := body[key].(string); ok && v != "" {
				return v
			}
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", statusCode)
}

// retryAfterMs reads the retry hint out of a rate-limit error body
func retryAfterMs(raw []byte) (int64, bool) {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0, false
	}
	v, ok := body["retry_after_ms"].(float64)
	if !ok {
		return 0, false
	}
	return int64(v), true
}

// isBranchNotFound matches the head-resolution failure shape from the
// internal endpoints.
func isBranchNotFound(details string) bool {
	lower := strings.ToLower(details)
	return strings.Contains(lower, "branch") && strings.Contains(lower, "not found")
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}
