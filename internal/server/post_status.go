package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/rohankatakam/relay/internal/activity"
	"github.com/rohankatakam/relay/internal/githost"
	"github.com/rohankatakam/relay/internal/identity"
	"github.com/rohankatakam/relay/internal/locks"
	"github.com/rohankatakam/relay/internal/orchestrate"
)

type postStatusRequest struct {
	RepoURL     string   `json:"repo_url"`
	Branch      string   `json:"branch"`
	FilePaths   []string `json:"file_paths"`
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	AgentHead   string   `json:"agent_head"`
	NewRepoHead string   `json:"new_repo_head"`
}

type postStatusResponse struct {
	Success              bool                `json:"success"`
	Locks                []locks.Lock        `json:"locks,omitempty"`
	Released             int                 `json:"released,omitempty"`
	OrphanedDependencies []string            `json:"orphaned_dependencies,omitempty"`
	Orchestration        orchestrate.Command `json:"orchestration"`
}

func (s *Server) handlePostStatus(w http.ResponseWriter, r *http.Request) {
	var req postStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errMissingFields())
		return
	}
	if req.RepoURL == "" || req.Branch == "" || len(req.FilePaths) == 0 ||
		req.Status == "" || req.Message == "" {
		writeError(w, errMissingFields())
		return
	}

	status := locks.Status(req.Status)
	if status != "OPEN" && !locks.ValidStatus(status) {
		writeError(w, errMissingFields())
		return
	}

	repoURL, err := githost.NormalizeRepoURL(req.RepoURL)
	if err != nil {
		writeError(w, err)
		return
	}

	caller := identity.FromRequest(r)
	if err := identity.RequireForWrite(caller, s.cfg.StrictIdentity); err != nil {
		writeError(w, err)
		return
	}

	if status == "OPEN" {
		s.handleRelease(w, r, repoURL, req, caller)
		return
	}
	s.handleAcquire(w, r, repoURL, req, caller, status)
}

// handleAcquire covers READING and WRITING. Both run the same acquire path;
// only WRITING fails on a stale head.
func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request, repoURL string, req postStatusRequest, caller identity.Identity, status locks.Status) {
	if req.AgentHead == "" {
		writeError(w, errMissingFields())
		return
	}

	ctx := r.Context()

	if status == locks.StatusWriting {
		owner, repo, err := githost.ParseRepoCoordinates(repoURL)
		if err != nil {
			writeError(w, err)
			return
		}
		remoteHead, err := s.host.BranchHead(ctx, owner, repo, req.Branch)
		if err != nil {
			writeError(w, err)
			return
		}
		if req.AgentHead != remoteHead {
			writeJSON(w, http.StatusOK, postStatusResponse{
				Success:       false,
				Orchestration: orchestrate.PullForStale(remoteHead, req.Branch),
			})
			return
		}
	}

	nowMs := s.clk.NowMs()
	result, err := s.registry.Acquire(ctx, locks.AcquireRequest{
		RepoURL:   repoURL,
		Branch:    req.Branch,
		Paths:     req.FilePaths,
		UserID:    caller.UserID,
		UserName:  caller.UserName,
		Status:    status,
		AgentHead: req.AgentHead,
		Message:   req.Message,
		NowMs:     nowMs,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if !result.Success {
		writeJSON(w, http.StatusOK, postStatusResponse{
			Success:       false,
			Orchestration: orchestrate.SwitchTaskForConflict(result.ConflictingFile, result.ConflictingUser),
		})
		return
	}

	s.recordActivity(ctx, repoURL, req.Branch, caller, string(status), req.Message, lockPaths(result.Locks), nowMs)

	writeJSON(w, http.StatusOK, postStatusResponse{
		Success:       true,
		Locks:         result.Locks,
		Orchestration: orchestrate.ProceedAfterAcquire(status, len(result.Locks)),
	})
}

// handleRelease covers OPEN: push-needed detection, release, and the
// orphaned-dependency report from the cached graph.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request, repoURL string, req postStatusRequest, caller identity.Identity) {
	if req.NewRepoHead != "" && req.AgentHead != "" && req.NewRepoHead == req.AgentHead {
		writeJSON(w, http.StatusOK, postStatusResponse{
			Success:       false,
			Orchestration: orchestrate.PushNeeded(),
		})
		return
	}

	ctx := r.Context()

	if err := s.registry.Release(ctx, repoURL, req.Branch, req.FilePaths, caller.UserID); err != nil {
		s.logger.Error("lock release failed", "repo", repoURL, "branch", req.Branch, "error", err)
		writeJSON(w, http.StatusInternalServerError, postStatusResponse{
			Success:       false,
			Orchestration: orchestrate.StopForReleaseFailure(),
		})
		return
	}

	orphaned := s.orphanedDependencies(r, repoURL, req.Branch, req.FilePaths)
	nowMs := s.clk.NowMs()
	s.recordActivity(ctx, repoURL, req.Branch, caller, "OPEN", req.Message, req.FilePaths, nowMs)

	writeJSON(w, http.StatusOK, postStatusResponse{
		Success:              true,
		Released:             len(req.FilePaths),
		OrphanedDependencies: orphaned,
		Orchestration:        orchestrate.ProceedAfterRelease(len(req.FilePaths), orphaned),
	})
}

// orphanedDependencies returns files that import any released path and are
// not themselves released. Reads only the cached graph; a missing graph
// means no report.
func (s *Server) orphanedDependencies(r *http.Request, repoURL, branch string, released []string) []string {
	g, found, err := s.graphStore.LoadGraph(r.Context(), repoURL, branch)
	if err != nil || !found {
		return nil
	}

	releasedSet := make(map[string]bool, len(released))
	for _, path := range released {
		releasedSet[path] = true
	}

	seen := map[string]bool{}
	var orphaned []string
	for _, path := range released {
		for _, dependent := range g.Dependents(path) {
			if !releasedSet[dependent] && !seen[dependent] {
				seen[dependent] = true
				orphaned = append(orphaned, dependent)
			}
		}
	}
	sort.Strings(orphaned)
	return orphaned
}

// recordActivity pushes one feed event per affected file. Feed failures are
// logged, never surfaced: the lock write already happened.
func (s *Server) recordActivity(ctx context.Context, repoURL, branch string, caller identity.Identity, status, message string, paths []string, nowMs int64) {
	events := make([]activity.Event, 0, len(paths))
	for i, path := range paths {
		events = append(events, activity.Event{
			ID:        activity.EventID(nowMs, caller.UserID, status, path, i),
			FilePath:  path,
			UserID:    caller.UserID,
			UserName:  caller.UserName,
			Status:    status,
			Message:   message,
			Timestamp: nowMs,
		})
	}
	if err := s.feed.Record(ctx, repoURL, branch, events); err != nil {
		s.logger.Warn("activity record failed", "repo", repoURL, "branch", branch, "error", err)
	}
}

func lockPaths(set []locks.Lock) []string {
	paths := make([]string, 0, len(set))
	for _, lock := range set {
		paths = append(paths, lock.FilePath)
	}
	return paths
}
