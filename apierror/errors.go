// Package apierror defines the failure taxonomy shared by the fetch executor,
// the query cache binding and mutations.
//
// Every failure is a *goerrors.Error whose TextCode carries the Kind and whose
// Code carries the HTTP status (0 when no response was received). Callers branch
// on KindOf or the Is* helpers, never on message text.
package apierror

import (
	"context"
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Kind tags a failure so callers can react without inspecting messages.
type Kind string

const (
	KindPrecondition Kind = "PRECONDITION_FAILED"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindValidation   Kind = "VALIDATION"
	KindRateLimited  Kind = "RATE_LIMITED"
	KindServer       Kind = "SERVER_ERROR"
	KindDecode       Kind = "DECODE_FAILED"
	KindTimeout      Kind = "TIMEOUT"
	KindCanceled     Kind = "CANCELED"
	KindTransport    Kind = "TRANSPORT"
)

// category maps a kind onto the go-errors category used for rendering and logging.
func (k Kind) category() goerrors.Category {
	switch k {
	case KindPrecondition:
		return goerrors.CategoryBadInput
	case KindUnauthorized:
		return goerrors.CategoryAuth
	case KindForbidden:
		return goerrors.CategoryAuthz
	case KindNotFound:
		return goerrors.CategoryNotFound
	case KindConflict:
		return goerrors.CategoryConflict
	case KindValidation:
		return goerrors.CategoryValidation
	case KindRateLimited:
		return goerrors.CategoryRateLimit
	case KindDecode:
		return goerrors.CategoryInternal
	default:
		return goerrors.CategoryOperation
	}
}

// New builds a tagged failure.
func New(kind Kind, status int, message string) *goerrors.Error {
	return goerrors.New(message, kind.category()).
		WithCode(status).
		WithTextCode(string(kind))
}

// Wrap builds a tagged failure that keeps source reachable through errors.Is/As.
func Wrap(source error, kind Kind, status int, message string) *goerrors.Error {
	if source == nil {
		return New(kind, status, message)
	}
	return goerrors.Wrap(source, kind.category(), message).
		WithCode(status).
		WithTextCode(string(kind))
}

// Precondition reports a missing scope, token or id before any I/O happened.
func Precondition(message string) *goerrors.Error {
	return New(KindPrecondition, 0, message)
}

// FromStatus classifies a non-2xx response. An empty message falls back to the
// standard status text.
func FromStatus(status int, message string) *goerrors.Error {
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = "request failed"
	}
	return New(KindForStatus(status), status, message)
}

// KindForStatus maps an HTTP status >= 400 onto a kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

// FromContext classifies a context error, returning nil for nil.
func FromContext(err error) *goerrors.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, KindTimeout, 0, "request timed out")
	case errors.Is(err, context.Canceled):
		return Wrap(err, KindCanceled, 0, "request canceled")
	default:
		return Wrap(err, KindTransport, 0, "request failed")
	}
}

// KindOf returns the kind carried by err, or "" when err is not tagged.
func KindOf(err error) Kind {
	var rich *goerrors.Error
	if errors.As(err, &rich) && rich.TextCode != "" {
		return Kind(rich.TextCode)
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var rich *goerrors.Error
	if errors.As(err, &rich) {
		return rich.Code
	}
	return 0
}

// MessageOf returns the server supplied or fallback message carried by err.
func MessageOf(err error) string {
	var rich *goerrors.Error
	if errors.As(err, &rich) {
		return rich.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }
func IsForbidden(err error) bool    { return KindOf(err) == KindForbidden }
func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsPrecondition(err error) bool { return KindOf(err) == KindPrecondition }
func IsTimeout(err error) bool      { return KindOf(err) == KindTimeout }

// IsRetryable reports whether a read may be attempted again under the retry
// policy. Client errors are never retried.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindServer, KindTransport, KindTimeout, KindRateLimited:
		return true
	default:
		return false
	}
}
