package githost

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/patrickmn/go-cache"
	"github.com/rohankatakam/relay/internal/relayerr"
	"golang.org/x/time/rate"
)

// headCacheTTL bounds how stale a cached branch HEAD may be. Staleness here
// only delays PULL verdicts; it never corrupts lock state.
const headCacheTTL = 30 * time.Second

// TreeEntry is one blob or tree node from a recursive tree listing
type TreeEntry struct {
	Path string
	SHA  string
	Size int
	Type string // "blob" or "tree"
}

// Host is read-only access to the repository host
type Host interface {
	BranchHead(ctx context.Context, owner, repo, branch string) (string, error)
	RecursiveTree(ctx context.Context, owner, repo, commitSHA string) ([]TreeEntry, error)
	BlobContent(ctx context.Context, owner, repo, path, commitSHA string) ([]byte, error)
}

// Client wraps the GitHub API client with rate limiting and a short HEAD cache
type Client struct {
	client      *github.Client
	rateLimiter *rate.Limiter
	headCache   *cache.Cache
	logger      *slog.Logger
}

// NewClient creates a GitHub client. An empty token means unauthenticated
// access at the host's reduced quota.
func NewClient(token string, rateLimit int) *Client {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if rateLimit <= 0 {
		rateLimit = 10
	}

	return &Client{
		client:      client,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
		headCache:   cache.New(headCacheTTL, 2*headCacheTTL),
		logger:      slog.Default().With("component", "githost"),
	}
}

// BranchHead resolves the commit sha the host currently reports for the
// branch. Results are cached for up to 30 seconds per (owner, repo, branch).
func (c *Client) BranchHead(ctx context.Context, owner, repo, branch string) (string, error) {
	cacheKey := fmt.Sprintf("%s/%s@%s", owner, repo, branch)
	if cached, found := c.headCache.Get(cacheKey); found {
		return cached.(string), nil
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", relayerr.Unreachable(err, "rate limiter interrupted")
	}

	ref, resp, err := c.client.Git.GetRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		return "", c.classify(err, resp, owner, repo, branch)
	}

	sha := ref.GetObject().GetSHA()
	if sha == "" {
		return "", relayerr.Internal("host returned a ref without a commit sha")
	}

	c.headCache.Set(cacheKey, sha, cache.DefaultExpiration)
	return sha, nil
}

// RecursiveTree lists every entry reachable from the commit
func (c *Client) RecursiveTree(ctx context.Context, owner, repo, commitSHA string) ([]TreeEntry, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, relayerr.Unreachable(err, "rate limiter interrupted")
	}

	tree, resp, err := c.client.Git.GetTree(ctx, owner, repo, commitSHA, true)
	if err != nil {
		return nil, c.classify(err, resp, owner, repo, "")
	}

	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, entry := range tree.Entries {
		entries = append(entries, TreeEntry{
			Path: entry.GetPath(),
			SHA:  entry.GetSHA(),
			Size: entry.GetSize(),
			Type: entry.GetType(),
		})
	}

	if tree.GetTruncated() {
		c.logger.Warn("recursive tree truncated by host", "repo", owner+"/"+repo, "entries", len(entries))
	}

	return entries, nil
}

// BlobContent fetches the file content at the given commit
func (c *Client) BlobContent(ctx context.Context, owner, repo, path, commitSHA string) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, relayerr.Unreachable(err, "rate limiter interrupted")
	}

	content, _, resp, err := c.client.Repositories.GetContents(ctx, owner, repo, path,
		&github.RepositoryContentGetOptions{Ref: commitSHA})
	if err != nil {
		return nil, c.classify(err, resp, owner, repo, "")
	}
	if content == nil {
		return nil, relayerr.Newf(relayerr.KindInternal, "path %q is not a file", path)
	}

	decoded, err := content.GetContent()
	if err != nil {
		// Some blobs report base64 without padding; retry a raw decode
		// before giving up.
		raw, rawErr := base64.StdEncoding.WithPadding(base64.NoPadding).DecodeString(rawContent(content))
		if rawErr != nil {
			return nil, relayerr.Wrapf(err, relayerr.KindInternal, "decode blob %q", path)
		}
		return raw, nil
	}

	return []byte(decoded), nil
}

// classify translates go-github errors into the service's error kinds
func (c *Client) classify(err error, resp *github.Response, owner, repo, branch string) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		retryAfter := time.Until(rateErr.Rate.Reset.Time)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return relayerr.QuotaExhausted("repository host API quota exhausted", retryAfter.Milliseconds())
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		var retryAfterMs int64
		if abuseErr.RetryAfter != nil {
			retryAfterMs = abuseErr.RetryAfter.Milliseconds()
		}
		return relayerr.QuotaExhausted("repository host abuse detection triggered", retryAfterMs)
	}

	if resp != nil {
		switch resp.StatusCode {
		case http.StatusNotFound:
			if branch != "" {
				return relayerr.BranchNotFound(owner, repo, branch)
			}
			return relayerr.Wrapf(err, relayerr.KindUnreachable, "%s/%s not found on host", owner, repo)
		case http.StatusForbidden, http.StatusTooManyRequests:
			return relayerr.QuotaExhausted("repository host rejected the request", 0)
		}
	}

	return relayerr.Unreachable(err, "repository host unreachable")
}

// rawContent returns the undecoded content string for blobs whose encoding
// metadata is missing.
func rawContent(content *github.RepositoryContent) string {
	if content == nil || content.Content == nil {
		return ""
	}
	return strings.ReplaceAll(strings.TrimSpace(*content.Content), "\n", "")
}
