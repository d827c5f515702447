package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error kinds form the closed vocabulary of machine-readable failure
// categories. They appear in API error envelopes and in persisted task
// records, so additions here are a wire-format change.
const (
	KindBadRequest             = "bad_request"
	KindURLRejected            = "url_rejected"
	KindPathEscape             = "path_escape"
	KindUnauthorized           = "unauthorized"
	KindNotFound               = "not_found"
	KindConflictBusy           = "conflict_busy"
	KindToolMissing            = "tool_missing"
	KindNetwork                = "network"
	KindVendorError            = "vendor_error"
	KindVendorRateLimited      = "vendor_rate_limited"
	KindSTTConsecutiveFailures = "stt_consecutive_failures"
	KindTimeout                = "timeout"
	KindCancelled              = "cancelled"
	KindStaleOnRestart         = "stale_on_restart"
	KindDiskFull               = "disk_full"
	KindInternal               = "internal"
	KindGeoBlocked             = "geo_blocked"
	KindAuthRequired           = "auth_required"
	KindProbeFailed            = "probe_failed"
	KindSplitFailed            = "split_failed"
)

// Error carries a kind plus a client-safe message. The wrapped error is for
// logs only and must never reach an API response.
type Error struct {
	Kind    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an Error of the given kind. message is user-visible.
func E(kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Ef is E with a formatted message.
func Ef(kind string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Kind extracts the kind of err. Context errors map to timeout/cancelled;
// anything untyped is internal.
func Kind(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if stderrors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind string) bool {
	return Kind(err) == kind
}

// UserMessage returns the client-safe message for err. Untyped errors get a
// generic message so internals never leak.
func UserMessage(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return "processing deadline exceeded"
	case stderrors.Is(err, context.Canceled):
		return "operation cancelled"
	}
	return "internal error"
}

// StatusFor maps an error kind to its HTTP status code.
func StatusFor(kind string) int {
	switch kind {
	case KindBadRequest, KindURLRejected, KindPathEscape:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindAuthRequired:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflictBusy, KindVendorRateLimited:
		return http.StatusTooManyRequests
	case KindCancelled:
		return http.StatusConflict
	case KindStaleOnRestart:
		return http.StatusGone
	case KindGeoBlocked:
		return http.StatusUnavailableForLegalReasons
	case KindProbeFailed:
		return http.StatusUnprocessableEntity
	case KindToolMissing:
		return http.StatusServiceUnavailable
	case KindNetwork, KindVendorError, KindSTTConsecutiveFailures:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindDiskFull:
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}
