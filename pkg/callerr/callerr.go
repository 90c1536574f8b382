// Package callerr types the failures of outbound calls (source site, translator,
// storefront) so callers can branch on the kind of failure instead of parsing messages.
package callerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies an outbound call failure.
type Kind string

const (
	Timeout      Kind = "timeout"
	HTTPStatus   Kind = "http_status"
	ParseFailure Kind = "parse_failure"
	RateLimited  Kind = "rate_limited"
)

// Error is the tagged failure returned by every collaborator call.
type Error struct {
	Kind   Kind
	Op     string // e.g. "shopify create", "fetch detail"
	Status int    // HTTP status when known
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "call failed"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error without an underlying cause.
func New(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

// Parse wraps a decoding failure.
func Parse(op string, err error) *Error {
	return &Error{Kind: ParseFailure, Op: op, Err: err}
}

// FromStatus maps a non-2xx HTTP status to a tagged error. 429 is RateLimited,
// everything else is HTTPStatus.
func FromStatus(op string, status int, detail string) *Error {
	kind := HTTPStatus
	if status == http.StatusTooManyRequests {
		kind = RateLimited
	}
	return &Error{Kind: kind, Op: op, Status: status, Detail: detail}
}

// FromTransport classifies an error returned by an http.Client. A call that never
// produced a response did not complete within its bound, so transport failures are
// reported as Timeout.
func FromTransport(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	detail := ""
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		detail = "deadline exceeded"
	}
	return &Error{Kind: Timeout, Op: op, Detail: detail, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// IsRetryable reports whether a later attempt could plausibly succeed.
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case Timeout, RateLimited:
		return true
	case HTTPStatus:
		var ce *Error
		errors.As(err, &ce)
		return ce.Status >= 500
	}
	return false
}
