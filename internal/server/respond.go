package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rohankatakam/relay/internal/relayerr"
)

// errorBody is the JSON error shape for every non-200 response
type errorBody struct {
	Error        string `json:"error"`
	Details      string `json:"details,omitempty"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Warn("response encode failed", "error", err)
	}
}

// writeError maps error kinds to HTTP status codes. Business outcomes
// (stale, conflict, push-needed) never reach here; they are 200 responses
// with success=false.
func writeError(w http.ResponseWriter, err error) {
	relayErr, ok := err.(*relayerr.Error)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "Internal server error",
			Details: err.Error(),
		})
		return
	}

	switch relayErr.Kind {
	case relayerr.KindValidation:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: relayErr.Message})
	case relayerr.KindIdentityUnresolved:
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "Identity required",
			Details: relayErr.Message,
		})
	case relayerr.KindQuotaExhausted:
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:        "Repository host rate limit exceeded",
			Details:      relayErr.Message,
			RetryAfterMs: relayErr.RetryAfterMs,
		})
	case relayerr.KindBranchNotFound:
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "Failed to resolve branch head",
			Details: relayErr.Message,
		})
	case relayerr.KindUnreachable:
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "Repository host unreachable",
			Details: relayErr.Message,
		})
	case relayerr.KindLockStoreUnavailable:
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "Lock store unavailable",
			Details: relayErr.Message,
		})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "Internal server error",
			Details: relayErr.Message,
		})
	}
}

// errMissingFields is the exact validation body agent clients match on
func errMissingFields() *relayerr.Error {
	return relayerr.Validation("Missing required fields")
}
