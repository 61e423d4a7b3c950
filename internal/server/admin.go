package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rohankatakam/relay/internal/activity"
	"github.com/rohankatakam/relay/internal/githost"
	"github.com/rohankatakam/relay/internal/locks"
)

// handleGraph serves the cached graph with a fresh lock overlay, building
// only when forced or when nothing is cached yet.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	repoURL, branch, err := namespaceQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	regenerate := r.URL.Query().Get("regenerate") == "true"

	if !regenerate {
		snap, found, err := s.graphs.Cached(r.Context(), repoURL, branch)
		if err != nil {
			writeError(w, err)
			return
		}
		if found {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}

	snap, err := s.graphs.Generate(r.Context(), repoURL, branch, regenerate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type activityResponse struct {
	ActivityEvents []activity.Event `json:"activity_events"`
}

// handleActivity returns feed events oldest-first for UI consumers
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	repoURL, branch, err := namespaceQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	events, err := s.feed.Recent(r.Context(), repoURL, branch, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	// Storage is newest-first; the UI wants chronological order
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	w.Header().Set("Cache-Control", "no-store, max-age=0")
	writeJSON(w, http.StatusOK, activityResponse{ActivityEvents: events})
}

type namespaceRequest struct {
	RepoURL string `json:"repo_url"`
	Branch  string `json:"branch"`
}

type releaseAllResponse struct {
	Success  bool   `json:"success"`
	Released int64  `json:"released"`
	RepoURL  string `json:"repo_url"`
	Branch   string `json:"branch"`
}

func (s *Server) handleReleaseAll(w http.ResponseWriter, r *http.Request) {
	repoURL, branch, err := namespaceBody(r)
	if err != nil {
		writeError(w, err)
		return
	}

	released, err := s.registry.ReleaseAll(r.Context(), repoURL, branch)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, releaseAllResponse{
		Success:  true,
		Released: released,
		RepoURL:  repoURL,
		Branch:   branch,
	})
}

type clearResponse struct {
	Success      bool  `json:"success"`
	LocksCleared int64 `json:"locks_cleared"`
	FeedCleared  int64 `json:"feed_cleared"`
}

// handleClearAgentAndFeed wipes locks and the activity feed together. A
// partial failure reports what did clear so an operator can finish by hand.
func (s *Server) handleClearAgentAndFeed(w http.ResponseWriter, r *http.Request) {
	repoURL, branch, err := namespaceBody(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	locksCleared, lockErr := s.registry.ReleaseAll(ctx, repoURL, branch)
	feedCleared, feedErr := s.feed.Clear(ctx, repoURL, branch)

	if lockErr != nil || feedErr != nil {
		s.logger.Error("clear_agent_and_feed partial failure",
			"repo", repoURL, "branch", branch,
			"lock_error", lockErr, "feed_error", feedErr)
		writeJSON(w, http.StatusInternalServerError, clearResponse{
			Success:      false,
			LocksCleared: locksCleared,
			FeedCleared:  feedCleared,
		})
		return
	}

	writeJSON(w, http.StatusOK, clearResponse{
		Success:      true,
		LocksCleared: locksCleared,
		FeedCleared:  feedCleared,
	})
}

type cleanupResponse struct {
	Success    bool  `json:"success"`
	Namespaces int   `json:"namespaces"`
	Removed    int64 `json:"removed"`
}

// handleCleanup reclaims expired lock fields across every namespace. Gated
// by the cron bearer secret; the registry stays correct without it.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if !s.cronAuthorized(r) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}

	namespaces, err := s.registry.Namespaces(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	nowMs := s.clk.NowMs()
	var removed int64
	scanned := 0
	for _, key := range namespaces {
		repoURL, branch, ok := locks.ParseNamespaceKey(key)
		if !ok {
			s.logger.Warn("skipping unparsable lock namespace", "key", key)
			continue
		}
		scanned++
		count, err := s.registry.CleanupExpired(r.Context(), repoURL, branch, nowMs)
		if err != nil {
			s.logger.Warn("cleanup failed for namespace", "key", key, "error", err)
			continue
		}
		removed += count
	}

	writeJSON(w, http.StatusOK, cleanupResponse{
		Success:    true,
		Namespaces: scanned,
		Removed:    removed,
	})
}

func (s *Server) cronAuthorized(r *http.Request) bool {
	if s.cronSecret == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cronSecret)) == 1
}

func namespaceQuery(r *http.Request) (repoURL, branch string, err error) {
	rawURL := r.URL.Query().Get("repo_url")
	branch = r.URL.Query().Get("branch")
	if rawURL == "" || branch == "" {
		return "", "", errMissingFields()
	}
	repoURL, err = githost.NormalizeRepoURL(rawURL)
	return repoURL, branch, err
}

func namespaceBody(r *http.Request) (repoURL, branch string, err error) {
	var req namespaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", "", errMissingFields()
	}
	if req.RepoURL == "" || req.Branch == "" {
		return "", "", errMissingFields()
	}
	repoURL, err = githost.NormalizeRepoURL(req.RepoURL)
	return repoURL, req.Branch, err
}
