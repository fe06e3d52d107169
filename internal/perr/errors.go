// Package perr defines the typed error kinds the proxy pipeline must
// distinguish, each carrying the HTTP status a worker should surface to the
// client when the error escapes the pipeline unhandled.
package perr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one of the error categories the message engine, request
// pipeline, response pipeline, and cache can produce.
type Kind string

const (
	KindParseError     Kind = "ParseError"
	KindHeaderTooLarge Kind = "HeaderTooLarge"
	KindBodyTooLarge   Kind = "BodyTooLarge"
	KindFramingError   Kind = "FramingError"
	KindIdleTimeout    Kind = "IdleTimeout"
	KindPeerClosed     Kind = "PeerClosed"
	KindTransportError Kind = "TransportError"
	KindDNSError       Kind = "DNSError"
	KindConnectError   Kind = "ConnectError"
	KindBlockedHost    Kind = "BlockedHost"
	KindFetchFailed    Kind = "FetchFailed"
	KindCacheIOError   Kind = "CacheIOError"
)

// Error wraps an underlying cause with a Kind and the HTTP status a worker
// should send when this error reaches the edge of the pipeline unhandled.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// statusFor maps each Kind to the response status spec.md §7 assigns it.
func statusFor(k Kind) int {
	switch k {
	case KindParseError, KindFramingError, KindHeaderTooLarge, KindBodyTooLarge:
		return http.StatusBadRequest
	case KindBlockedHost:
		return http.StatusForbidden
	case KindDNSError, KindConnectError, KindFetchFailed:
		return http.StatusGatewayTimeout
	case KindIdleTimeout, KindPeerClosed, KindTransportError, KindCacheIOError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New constructs an *Error of the given kind wrapping err.
func New(k Kind, err error) *Error {
	return &Error{Kind: k, Status: statusFor(k), Err: err}
}

// Wrapf constructs an *Error of the given kind from a formatted message.
func Wrapf(k Kind, format string, args ...any) *Error {
	return New(k, fmt.Errorf(format, args...))
}

// StatusOf returns the HTTP status that should be sent for err, defaulting
// to 500 if err is not (or does not wrap) a *perr.Error.
func StatusOf(err error) int {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Status
	}
	return http.StatusInternalServerError
}

// Is reports whether err is (or wraps) an *Error of kind k.
func Is(err error, k Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == k
	}
	return false
}
