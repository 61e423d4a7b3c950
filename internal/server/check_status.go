package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rohankatakam/relay/internal/githost"
	"github.com/rohankatakam/relay/internal/identity"
	"github.com/rohankatakam/relay/internal/locks"
	"github.com/rohankatakam/relay/internal/orchestrate"
)

type checkStatusRequest struct {
	RepoURL   string   `json:"repo_url"`
	Branch    string   `json:"branch"`
	FilePaths []string `json:"file_paths"`
	AgentHead string   `json:"agent_head"`
}

// lockView is the wire shape of a lock in check_status responses. The
// "user" field duplicates user_id for older UI consumers.
type lockView struct {
	FilePath  string               `json:"file_path"`
	UserID    string               `json:"user_id"`
	User      string               `json:"user"`
	UserName  string               `json:"user_name"`
	Status    locks.Status         `json:"status"`
	AgentHead string               `json:"agent_head"`
	Message   string               `json:"message"`
	Timestamp int64                `json:"timestamp"`
	Expiry    int64                `json:"expiry"`
	LockType  orchestrate.LockType `json:"lock_type"`
}

type checkStatusResponse struct {
	Status        orchestrate.CheckStatus `json:"status"`
	RepoHead      string                  `json:"repo_head"`
	Locks         map[string]lockView     `json:"locks"`
	Warnings      []string                `json:"warnings,omitempty"`
	Orchestration orchestrate.Command     `json:"orchestration"`
}

func (s *Server) handleCheckStatus(w http.ResponseWriter, r *http.Request) {
	var req checkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errMissingFields())
		return
	}
	if req.RepoURL == "" || req.Branch == "" || len(req.FilePaths) == 0 || req.AgentHead == "" {
		writeError(w, errMissingFields())
		return
	}

	repoURL, err := githost.NormalizeRepoURL(req.RepoURL)
	if err != nil {
		writeError(w, err)
		return
	}
	owner, repo, err := githost.ParseRepoCoordinates(repoURL)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	caller := identity.FromRequest(r)

	remoteHead, err := s.host.BranchHead(ctx, owner, repo, req.Branch)
	if err != nil {
		writeError(w, err)
		return
	}

	active, err := s.registry.List(ctx, repoURL, req.Branch, s.clk.NowMs())
	if err != nil {
		writeError(w, err)
		return
	}

	// Neighbor tagging rides on whatever graph is cached; a missing graph
	// just means no NEIGHBOR locks.
	var neighborsOf func(string) []string
	if g, found, gerr := s.graphStore.LoadGraph(ctx, repoURL, req.Branch); gerr == nil && found {
		neighborsOf = g.Neighbors
	}

	tagged := orchestrate.TagLocks(active, req.FilePaths, neighborsOf)
	verdict := orchestrate.ForCheck(caller.UserID, req.AgentHead, remoteHead, req.Branch, tagged)

	resp := checkStatusResponse{
		Status:        verdict.Status,
		RepoHead:      remoteHead,
		Locks:         make(map[string]lockView, len(tagged)),
		Orchestration: verdict.Command,
	}
	for path, lock := range tagged {
		resp.Locks[path] = lockView{
			FilePath:  lock.FilePath,
			UserID:    lock.UserID,
			User:      lock.UserID,
			UserName:  lock.UserName,
			Status:    lock.Status,
			AgentHead: lock.AgentHead,
			Message:   lock.Message,
			Timestamp: lock.Timestamp,
			Expiry:    lock.Expiry,
			LockType:  lock.LockType,
		}
	}
	if verdict.StaleBranch {
		resp.Warnings = []string{fmt.Sprintf("STALE_BRANCH: Your branch is behind origin/%s", req.Branch)}
	}

	writeJSON(w, http.StatusOK, resp)
}
