package githost

import (
	"net/url"
	"strings"

	"github.com/rohankatakam/relay/internal/relayerr"
)

// NormalizeRepoURL canonicalizes a repository URL so equivalent spellings
// land in the same coordination namespace: host and owner/repo are
// lowercased, trailing ".git" and slashes are stripped. Anything that is
// not a recognizable host URL is rejected.
func NormalizeRepoURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", relayerr.Validation("repository URL is empty")
	}

	// Accept scheme-less URLs like "github.com/owner/repo"
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", relayerr.Validationf("invalid repository URL %q", raw)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", relayerr.Validationf("unsupported repository URL scheme %q", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" || !strings.Contains(host, ".") {
		return "", relayerr.Validationf("invalid repository URL %q", raw)
	}

	path := strings.ToLower(strings.Trim(parsed.EscapedPath(), "/"))
	path = strings.TrimSuffix(path, ".git")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return "", relayerr.Validationf("repository URL %q has no owner/repo path", raw)
	}

	return "https://" + host + "/" + path, nil
}

// ParseRepoCoordinates extracts (owner, repo) from a repository URL.
// The URL is normalized first, so any accepted spelling works.
func ParseRepoCoordinates(rawURL string) (owner, repo string, err error) {
	canonical, err := NormalizeRepoURL(rawURL)
	if err != nil {
		return "", "", err
	}

	parsed, _ := url.Parse(canonical)
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", relayerr.Validationf("repository URL %q must contain owner and repo", rawURL)
	}

	return parts[0], parts[1], nil
}
