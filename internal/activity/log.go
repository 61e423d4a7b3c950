package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rohankatakam/relay/internal/kv"
)

const (
	// MaxRetained bounds the stored list; the oldest entry falls off on push
	MaxRetained = 500
	// DefaultReadLimit is how many events a read returns unless asked otherwise
	DefaultReadLimit = 120
)

// Event is one status transition in a namespace's feed
type Event struct {
	ID        string `json:"id"`
	FilePath  string `json:"file_path"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Status    string `json:"status"` // OPEN, READING or WRITING
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// EventID synthesizes a stable id from the event's own fields, so replays
// of the same transition produce the same id.
func EventID(timestamp int64, userID, status, filePath string, index int) string {
	return fmt.Sprintf("%d-%s-%s-%s-%d", timestamp, userID, status, filePath, index)
}

func namespaceKey(repoURL, branch string) string {
	return fmt.Sprintf("activity:%s:%s", repoURL, branch)
}

// Log is the bounded newest-first activity feed
type Log struct {
	kv     kv.Store
	logger *slog.Logger
}

// NewLog creates an activity log on the given KV backend
func NewLog(store kv.Store) *Log {
	return &Log{kv: store, logger: slog.Default().With("component", "activity")}
}

// Record pushes events to the head of the feed and trims to MaxRetained.
// A failure here is logged, not fatal: the lock write already happened and
// losing a feed entry is acceptable.
func (l *Log) Record(ctx context.Context, repoURL, branch string, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	encoded := make([]string, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode activity event: %w", err)
		}
		encoded = append(encoded, string(data))
	}

	key := namespaceKey(repoURL, branch)
	if err := l.kv.LPush(ctx, key, encoded...); err != nil {
		return err
	}
	return l.kv.LTrim(ctx, key, 0, MaxRetained-1)
}

// Recent returns the newest limit events, newest first. limit defaults to
// DefaultReadLimit and is capped at MaxRetained. Entries that fail to parse
// are skipped.
func (l *Log) Recent(ctx context.Context, repoURL, branch string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	if limit > MaxRetained {
		limit = MaxRetained
	}

	raw, err := l.kv.LRange(ctx, namespaceKey(repoURL, branch), 0, int64(limit-1))
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var event Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			l.logger.Warn("skipping unparsable activity entry", "repo", repoURL, "branch", branch)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// Clear deletes the feed, returning the prior length
func (l *Log) Clear(ctx context.Context, repoURL, branch string) (int64, error) {
	key := namespaceKey(repoURL, branch)
	length, err := l.kv.LLen(ctx, key)
	if err != nil {
		return 0, err
	}
	if _, err := l.kv.Del(ctx, key); err != nil {
		return 0, err
	}
	return length, nil
}
