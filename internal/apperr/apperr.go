// Package apperr defines the error kinds shared by the request and worker paths.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for HTTP mapping and retry decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthentication
	KindAuthorization
	KindValidation
	KindNotFound
	KindInvariant
	KindTransport
	KindRateLimit
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvariant:
		return "invariant"
	case KindTransport:
		return "transport"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "unknown"
	}
}

// Error carries a kind, a client-safe message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Authentication(msg string) *Error { return newError(KindAuthentication, msg, nil) }
func Authorization(msg string) *Error  { return newError(KindAuthorization, msg, nil) }
func Validation(msg string) *Error     { return newError(KindValidation, msg, nil) }
func NotFound(msg string) *Error       { return newError(KindNotFound, msg, nil) }
func Invariant(msg string) *Error      { return newError(KindInvariant, msg, nil) }
func RateLimited(msg string) *Error    { return newError(KindRateLimit, msg, nil) }

// Transport wraps a broker or delivery failure.
func Transport(msg string, err error) *Error { return newError(KindTransport, msg, err) }

// Wrap attaches a cause to an error of the given kind.
func Wrap(kind Kind, msg string, err error) *Error { return newError(kind, msg, err) }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-safe message of err, or "" when unclassified.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

// HTTPStatus maps a kind onto a response code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation, KindInvariant:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
