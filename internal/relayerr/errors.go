package relayerr

import (
	"fmt"
	"strings"
)

// Kind represents the category of error
type Kind int

const (
	// KindValidation - missing or malformed request inputs
	KindValidation Kind = iota
	// KindIdentityUnresolved - write path received no identity in strict mode
	KindIdentityUnresolved
	// KindQuotaExhausted - repository host rate limit hit
	KindQuotaExhausted
	// KindBranchNotFound - branch does not resolve on the repository host
	KindBranchNotFound
	// KindUnreachable - repository host unavailable
	KindUnreachable
	// KindLockStoreUnavailable - KV store transport or script failure
	KindLockStoreUnavailable
	// KindInternal - unexpected internal state
	KindInternal
)

// Error is a structured error with a kind and optional context
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]interface{}

	// RetryAfterMs is set only for KindQuotaExhausted, derived from the
	// host's rate-limit headers.
	RetryAfterMs int64
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind so callers can use errors.Is with sentinel kinds
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// DetailedString returns the message with kind and context for logging
func (e *Error) DetailedString() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", kindString(e.Kind), e.Message))
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(" (caused by: %v)", e.Cause))
	}
	for k, v := range e.Context {
		sb.WriteString(fmt.Sprintf(" %s=%v", k, v))
	}
	return sb.String()
}

func kindString(k Kind) string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindIdentityUnresolved:
		return "IDENTITY_UNRESOLVED"
	case KindQuotaExhausted:
		return "QUOTA_EXHAUSTED"
	case KindBranchNotFound:
		return "BRANCH_NOT_FOUND"
	case KindUnreachable:
		return "UNREACHABLE"
	case KindLockStoreUnavailable:
		return "LOCK_STORE_UNAVAILABLE"
	case KindInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// New creates a new error with the given kind and message
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new error with formatting
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a kind and message
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// Wrapf wraps an existing error with formatting
func Wrapf(err error, kind Kind, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Convenience constructors for common kinds

// Validation creates a validation error
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Validationf creates a validation error with formatting
func Validationf(format string, args ...interface{}) *Error {
	return Newf(KindValidation, format, args...)
}

// QuotaExhausted creates a quota error carrying the host's retry hint
func QuotaExhausted(message string, retryAfterMs int64) *Error {
	return &Error{Kind: KindQuotaExhausted, Message: message, RetryAfterMs: retryAfterMs}
}

// BranchNotFound creates a branch resolution error
func BranchNotFound(owner, repo, branch string) *Error {
	return Newf(KindBranchNotFound, "branch %q not found in %s/%s", branch, owner, repo)
}

// Unreachable wraps a host transport failure
func Unreachable(err error, message string) *Error {
	return Wrap(err, KindUnreachable, message)
}

// LockStoreUnavailable wraps a KV store failure
func LockStoreUnavailable(err error, message string) *Error {
	return Wrap(err, KindLockStoreUnavailable, message)
}

// Internal creates an internal error
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// GetKind returns the kind of an error, KindInternal for foreign errors
func GetKind(err error) Kind {
	if err == nil {
		return KindInternal
	}
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindInternal
}

// KindOf reports whether err carries the given kind
func KindOf(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
