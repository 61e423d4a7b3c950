package identity

import (
	"net/http"
	"strings"

	"github.com/rohankatakam/relay/internal/relayerr"
)

// Header names the agent adapter sets on every internal call. The primary
// header wins for the stable id; the display name prefers the reverse order.
const (
	HeaderUser     = "x-github-user"
	HeaderUsername = "x-github-username"

	// Anonymous is the permissive-mode fallback identity
	Anonymous = "anonymous"
)

// Identity is the resolved caller identity for a single request
type Identity struct {
	// UserID is the stable identity used for lock ownership
	UserID string
	// UserName is display-only
	UserName string
}

// FromRequest extracts the caller identity from request headers.
// Permissive by default: empty headers resolve to "anonymous".
func FromRequest(r *http.Request) Identity {
	userID := firstNonEmpty(r.Header.Get(HeaderUser), r.Header.Get(HeaderUsername))
	userName := firstNonEmpty(r.Header.Get(HeaderUsername), r.Header.Get(HeaderUser))

	if userID == "" {
		userID = Anonymous
	}
	if userName == "" {
		userName = Anonymous
	}
	return Identity{UserID: userID, UserName: userName}
}

// RequireForWrite enforces strict mode on write paths: an anonymous identity
// is rejected when strict is on. Permissive mode always passes.
func RequireForWrite(id Identity, strict bool) error {
	if !strict {
		return nil
	}
	if id.UserID == "" || id.UserID == Anonymous {
		return relayerr.New(relayerr.KindIdentityUnresolved, "write request requires an identity header")
	}
	return nil
}

// Normalize trims a caller-supplied username, falling back to "anonymous".
// Used by the tool adapter before it sets the identity headers.
func Normalize(username string) string {
	normalized := strings.TrimSpace(username)
	if normalized == "" {
		return Anonymous
	}
	return normalized
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
