package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a failure so callers can branch without string matching.
type Kind string

const (
	KindAuthError          Kind = "auth_error"
	KindRateLimited        Kind = "rate_limited"
	KindContentBlocked     Kind = "content_blocked"
	KindBackendError       Kind = "backend_error"
	KindTimeout            Kind = "timeout"
	KindConfigurationError Kind = "configuration_error"
	KindModelDisabled      Kind = "model_disabled"
	KindModelNotFound      Kind = "model_not_found"
	KindInsufficientCredit Kind = "insufficient_credits"
	KindAccountSuspended   Kind = "account_suspended"
	KindStoreError         Kind = "store_error"
)

// maxDetailRunes bounds how much backend error text a classified error may
// carry. ContentBlocked in particular must never echo the caller's prompt,
// only an excerpt of the backend's own message.
const maxDetailRunes = 200

// Error is a classified error. It is created exactly once, at the boundary
// that observed the failure, and never re-interpreted downstream.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration // optional hint, only for KindRateLimited
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a classified error with a bounded message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: Truncate(message, maxDetailRunes)}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return NewError(kind, fmt.Sprintf(format, args...))
}

// KindOf returns the classification of err, or KindBackendError when err is
// not a classified error. A nil err has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return KindBackendError
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// RetryAfterHint returns the rate-limit wait hint carried by err, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var cerr *Error
	if errors.As(err, &cerr) && cerr.Kind == KindRateLimited && cerr.RetryAfter > 0 {
		return cerr.RetryAfter, true
	}
	return 0, false
}

// Truncate bounds s to n runes.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// ClassifyStatus maps an HTTP status and the backend's error body to a
// classified error. Classification is driven by the transport status code
// first; text heuristics are a last resort and live only here and in
// looksBlocked/looksRateLimited.
func ClassifyStatus(status int, body string, header http.Header) *Error {
	detail := Truncate(body, maxDetailRunes)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindAuthError, Message: detail}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Message: detail, RetryAfter: parseRetryAfter(header)}
	case status == http.StatusBadRequest && looksBlocked(body):
		return &Error{Kind: KindContentBlocked, Message: detail}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &Error{Kind: KindTimeout, Message: detail}
	case status >= 400:
		return &Error{Kind: KindBackendError, Message: fmt.Sprintf("status %d: %s", status, detail)}
	}
	return &Error{Kind: KindBackendError, Message: detail}
}

// ClassifyTransport maps a transport-level error (no HTTP status available)
// to a classified error. Context expiry becomes Timeout.
func ClassifyTransport(err error) *Error {
	if err == nil {
		return nil
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "Client.Timeout"):
		return NewError(KindTimeout, msg)
	case strings.Contains(msg, "context canceled"):
		return NewError(KindTimeout, msg)
	case looksRateLimited(msg):
		return NewError(KindRateLimited, msg)
	}
	return NewError(KindBackendError, msg)
}

func parseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// looksBlocked is the last-resort text heuristic for moderation rejections
// on backends that report them as plain 400s without a structured code.
func looksBlocked(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range []string{"safety", "content_policy", "content policy", "moderation", "blocked"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func looksRateLimited(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "429") || strings.Contains(lower, "rate limit")
}
