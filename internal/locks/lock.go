package locks

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TTLMs is how long a lock stays active without renewal (5 minutes).
// Expired locks are invisible to reads and non-blocking to acquisitions;
// cleanup only reclaims the storage.
const TTLMs int64 = 300_000

// Status is the advertised intent of a lock holder. READING and WRITING
// share the same exclusion rule (one holder per file) but observers see
// them as distinct states.
type Status string

const (
	StatusReading Status = "READING"
	StatusWriting Status = "WRITING"
)

// ValidStatus reports whether s is a lockable status
func ValidStatus(s Status) bool {
	return s == StatusReading || s == StatusWriting
}

// Lock is one file claim within a namespace
type Lock struct {
	FilePath  string `json:"file_path"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Status    Status `json:"status"`
	AgentHead string `json:"agent_head"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"` // ms since epoch, assigned by the service
	Expiry    int64  `json:"expiry"`    // Timestamp + TTLMs
}

// Active reports whether the lock still excludes others at nowMs.
// A lock exactly at its expiry is already inactive.
func (l Lock) Active(nowMs int64) bool {
	return nowMs < l.Expiry
}

// Encode serializes the lock for hash-field storage
func (l Lock) Encode() (string, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("encode lock for %s: %w", l.FilePath, err)
	}
	return string(data), nil
}

// DecodeLock parses a stored hash-field value
func DecodeLock(raw string) (Lock, error) {
	var lock Lock
	if err := json.Unmarshal([]byte(raw), &lock); err != nil {
		return Lock{}, fmt.Errorf("decode lock record: %w", err)
	}
	return lock, nil
}

// NamespaceKey is the hash key holding all locks for a (repo, branch)
func NamespaceKey(repoURL, branch string) string {
	return fmt.Sprintf("locks:%s:%s", repoURL, branch)
}

// ParseNamespaceKey inverts NamespaceKey. Repo URLs contain colons, so the
// branch is everything after the last colon.
func ParseNamespaceKey(key string) (repoURL, branch string, ok bool) {
	const prefix = "locks:"
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return "", "", false
	}
	rest := key[len(prefix):]
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

// dedupePaths drops duplicate paths while preserving request order, so a
// multi-file acquire treats each path once.
func dedupePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
