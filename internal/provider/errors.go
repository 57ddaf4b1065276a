package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"focusaura/internal/domain"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindAuth      Kind = "auth"
	KindRateLimit Kind = "rate_limit"
	KindServer    Kind = "server"
	KindTimeout   Kind = "timeout"
	KindNetwork   Kind = "network"
	KindParse     Kind = "parse"
	// KindBadRequest covers 4xx responses other than 401/403/429.
	KindBadRequest Kind = "bad_request"
)

// Retryable reports whether another attempt may succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimit, KindServer, KindTimeout, KindNetwork:
		return true
	default:
		return false
	}
}

// Error is a classified provider failure.
type Error struct {
	Role   domain.ProviderRole
	Kind   Kind
	Status int
	Err    error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrAuth       = &Error{Kind: KindAuth}
	ErrRateLimit  = &Error{Kind: KindRateLimit}
	ErrServer     = &Error{Kind: KindServer}
	ErrTimeout    = &Error{Kind: KindTimeout}
	ErrNetwork    = &Error{Kind: KindNetwork}
	ErrParse      = &Error{Kind: KindParse}
	ErrBadRequest = &Error{Kind: KindBadRequest}
)

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s provider: %s", e.Role, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the classification of err, or "" when err is not a provider error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// classifyStatus maps a non-2xx HTTP status to a kind; 2xx yields "".
func classifyStatus(status int) Kind {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindServer
	default:
		return KindBadRequest
	}
}

// classifyTransport maps an error from http.Client.Do or a body read.
func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
