package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failed model call.
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindAccessDenied   ErrorKind = "access_denied"
	KindNotFound       ErrorKind = "not_found"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindContextLength  ErrorKind = "context_length"
	KindContentFilter  ErrorKind = "content_filter"
	KindQuotaExceeded  ErrorKind = "quota_exceeded"
	KindRateLimit      ErrorKind = "rate_limit"
	KindServer         ErrorKind = "server"
	KindTimeout        ErrorKind = "timeout"
	KindNetwork        ErrorKind = "network"
	KindAborted        ErrorKind = "aborted"
	KindConfiguration  ErrorKind = "configuration"
	KindUnknown        ErrorKind = "unknown"
)

// Kinds not listed here are permanent.
var retryableKinds = map[ErrorKind]bool{
	KindRateLimit: true,
	KindServer:    true,
	KindTimeout:   true,
	KindNetwork:   true,
	KindUnknown:   true,
}

// Error is the single error type returned by Client and the adapters.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Code       string // provider error code, e.g. "insufficient_quota"
	Message    string
	Cause      error
}

func newError(kind ErrorKind, provider, message string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Provider != "" {
		sb.WriteString(e.Provider)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " (status %d)", e.StatusCode)
	}
	if e.Cause != nil && e.Cause.Error() != e.Message {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the same request may succeed if sent again.
func (e *Error) Retryable() bool { return retryableKinds[e.Kind] }

// quotaErrorCodes are provider error codes that signal an exhausted billing
// quota rather than a transient rate limit.
var quotaErrorCodes = map[string]bool{
	"insufficient_quota":         true,
	"billing_hard_limit_reached": true,
}

var statusKinds = map[int]ErrorKind{
	400: KindInvalidRequest,
	401: KindAuthentication,
	403: KindAccessDenied,
	404: KindNotFound,
	408: KindTimeout,
	413: KindContextLength,
	422: KindInvalidRequest,
	429: KindRateLimit,
	500: KindServer,
	502: KindServer,
	503: KindServer,
	504: KindServer,
}

// ErrorFromStatusCode classifies an HTTP error response.
func ErrorFromStatusCode(statusCode int, message, provider, code string, cause error) *Error {
	kind, ok := statusKinds[statusCode]
	switch {
	case quotaErrorCodes[code]:
		kind = KindQuotaExceeded
	case !ok:
		kind = KindUnknown
	}
	return &Error{
		Kind:       kind,
		Provider:   provider,
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Cause:      cause,
	}
}

// contextError maps a cancelled or expired context to an *Error, or returns
// nil if err is neither.
func contextError(provider string, err error) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return newError(KindAborted, provider, "request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, provider, "request timed out", err)
	}
	return nil
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth retrying. Errors from outside
// this package are assumed transient unless they are context errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
