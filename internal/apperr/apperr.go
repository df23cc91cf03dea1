// Package apperr classifies failures so the HTTP boundary can map them to
// status codes without inspecting messages.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is the failure class of an Error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalid
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid_input"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream_failure"
	default:
		return "unknown"
	}
}

// Error carries a Kind, a message that is safe to show to clients, and an
// optional cause that is only logged.
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

func (e *Error) Unwrap() error {
	return e.Err
}

func Invalid(msg string) error         { return &Error{Kind: KindInvalid, Message: msg} }
func Unauthenticated(msg string) error { return &Error{Kind: KindUnauthenticated, Message: msg} }
func Forbidden(msg string) error       { return &Error{Kind: KindForbidden, Message: msg} }
func NotFound(msg string) error        { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) error        { return &Error{Kind: KindConflict, Message: msg} }

// Upstream wraps a failure of the backing table service.
func Upstream(err error, msg string) error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is an *Error of kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Message returns the client-safe message of err. Errors without a Kind get
// fallback.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindUnknown && e.Message != "" {
		return e.Message
	}
	return fallback
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case KindInvalid:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus rebuilds an Error from a response status and the message the
// server sent with it.
func FromStatus(status int, msg string) error {
	k := KindUpstream
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		k = KindInvalid
	case http.StatusUnauthorized:
		k = KindUnauthenticated
	case http.StatusForbidden:
		k = KindForbidden
	case http.StatusNotFound:
		k = KindNotFound
	case http.StatusConflict:
		k = KindConflict
	}
	return &Error{Kind: k, Message: msg}
}
