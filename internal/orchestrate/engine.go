package orchestrate

import (
	"fmt"
	"sort"

	"github.com/rohankatakam/relay/internal/locks"
)

// CommandType is the constant discriminator on every verdict
const CommandType = "orchestration_command"

// Action is the single-field verdict returned to the caller
type Action string

const (
	ActionProceed    Action = "PROCEED"
	ActionPull       Action = "PULL"
	ActionPush       Action = "PUSH"
	ActionWait       Action = "WAIT"
	ActionSwitchTask Action = "SWITCH_TASK"
	ActionStop       Action = "STOP"
)

// Command is the actionable verdict attached to every response
type Command struct {
	Type    string `json:"type"`
	Action  Action `json:"action"`
	Command string `json:"command,omitempty"` // human-readable shell hint
	Reason  string `json:"reason"`
}

// New builds a command with the constant type label
func New(action Action, shellHint, reason string) Command {
	return Command{Type: CommandType, Action: action, Command: shellHint, Reason: reason}
}

// LockType tags how a lock relates to the caller's request
type LockType string

const (
	LockDirect   LockType = "DIRECT"   // on a file the caller named
	LockNeighbor LockType = "NEIGHBOR" // adjacent via an import edge
)

// TaggedLock pairs a lock with its relation to the request
type TaggedLock struct {
	locks.Lock
	LockType LockType `json:"lock_type"`
}

// TagLocks classifies every active lock against the caller's requested
// paths and the cached graph's undirected adjacency. Direct wins when both
// apply. Locks touching neither requested files nor their neighbors are
// omitted.
func TagLocks(active map[string]locks.Lock, requested []string, neighborsOf func(string) []string) map[string]TaggedLock {
	direct := make(map[string]bool, len(requested))
	for _, path := range requested {
		direct[path] = true
	}

	neighbor := map[string]bool{}
	if neighborsOf != nil {
		for _, path := range requested {
			for _, adj := range neighborsOf(path) {
				neighbor[adj] = true
			}
		}
	}

	tagged := make(map[string]TaggedLock)
	for path, lock := range active {
		switch {
		case direct[path]:
			tagged[path] = TaggedLock{Lock: lock, LockType: LockDirect}
		case neighbor[path]:
			tagged[path] = TaggedLock{Lock: lock, LockType: LockNeighbor}
		}
	}
	return tagged
}

// firstConflict returns the first lock not owned by the caller, direct
// locks before neighbor locks, each group ordered by path so the cited
// file is deterministic.
func firstConflict(callerID string, tagged map[string]TaggedLock) (TaggedLock, bool) {
	paths := make([]string, 0, len(tagged))
	for path := range tagged {
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool {
		ti, tj := tagged[paths[i]].LockType, tagged[paths[j]].LockType
		if ti != tj {
			return ti == LockDirect
		}
		return paths[i] < paths[j]
	})

	for _, path := range paths {
		if tagged[path].UserID != callerID {
			return tagged[path], true
		}
	}
	return TaggedLock{}, false
}

// CheckStatus is the top-level status field of a check_status response.
// Precedence: STALE > CONFLICT > OK.
type CheckStatus string

const (
	StatusOK       CheckStatus = "OK"
	StatusStale    CheckStatus = "STALE"
	StatusConflict CheckStatus = "CONFLICT"
)

// CheckVerdict is the full decision for a check_status request
type CheckVerdict struct {
	Status      CheckStatus
	Command     Command
	StaleBranch bool
}

// ForCheck decides the verdict for a read-intent check. Locks are reported
// regardless of staleness; the orchestration gives stale precedence.
func ForCheck(callerID, agentHead, remoteHead, branch string, tagged map[string]TaggedLock) CheckVerdict {
	stale := agentHead != remoteHead
	conflict, hasConflict := firstConflict(callerID, tagged)

	verdict := CheckVerdict{Status: StatusOK, StaleBranch: stale}
	switch {
	case stale:
		verdict.Status = StatusStale
	case hasConflict:
		verdict.Status = StatusConflict
	}

	switch {
	case stale:
		verdict.Command = New(ActionPull, "git pull --rebase",
			fmt.Sprintf("Your branch is behind origin/%s (remote head %s)", branch, remoteHead))
	case hasConflict:
		verdict.Command = New(ActionSwitchTask, "",
			fmt.Sprintf("%s lock on %s is held by %s", conflict.LockType, conflict.FilePath, conflict.UserID))
	default:
		verdict.Command = New(ActionProceed, "", "Working tree is current and requested files are unclaimed")
	}

	return verdict
}

// PullForStale is the post_status verdict when the caller's head lags the
// remote on a WRITING request.
func PullForStale(remoteHead, branch string) Command {
	return New(ActionPull, "git pull --rebase",
		fmt.Sprintf("Your branch is behind origin/%s (remote head %s); pull before writing", branch, remoteHead))
}

// SwitchTaskForConflict is the post_status verdict when acquire was blocked
func SwitchTaskForConflict(file, owner string) Command {
	return New(ActionSwitchTask, "",
		fmt.Sprintf("%s: %s is locked by %s", locks.ReasonFileConflict, file, owner))
}

// ProceedAfterAcquire is the verdict for a successful lock write
func ProceedAfterAcquire(status locks.Status, count int) Command {
	return New(ActionProceed, "", fmt.Sprintf("Acquired %s locks on %d file(s)", status, count))
}

// PushNeeded is the OPEN verdict when the caller has not advanced the repo:
// new_repo_head still equals agent_head, so there is nothing to release yet.
func PushNeeded() Command {
	return New(ActionPush, "git push", "Repository head has not advanced; push your work before releasing")
}

// ProceedAfterRelease is the verdict for a successful release
func ProceedAfterRelease(released int, orphaned []string) Command {
	reason := fmt.Sprintf("Released %d file(s)", released)
	if len(orphaned) > 0 {
		reason = fmt.Sprintf("%s; %d dependent file(s) may need attention", reason, len(orphaned))
	}
	return New(ActionProceed, "", reason)
}

// StopForReleaseFailure is the verdict when the lock store failed mid-release
func StopForReleaseFailure() Command {
	return New(ActionStop, "", "Lock release failed; coordination state is unknown, stop and retry")
}
