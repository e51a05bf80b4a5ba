// Package rpcerr implements the gateway's error taxonomy (spec §7): a small
// set of typed errors that carry a JSON-RPC-style numeric code and optional
// structured data, and the classification helpers that map transport/HTTP
// conditions onto them.
package rpcerr

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind is one entry of the error taxonomy.
type Kind string

const (
	KindParseError      Kind = "parse-error"
	KindInvalidRequest  Kind = "invalid-request"
	KindMethodNotFound  Kind = "method-not-found"
	KindInvalidParams   Kind = "invalid-params"
	KindInternalError   Kind = "internal-error"
	KindProviderError   Kind = "provider-error"
	KindModelNotFound   Kind = "model-not-found"
	KindAuthError       Kind = "auth-error"
	KindRateLimit       Kind = "rate-limit"
)

// Code returns the numeric wire code for a taxonomy kind.
func (k Kind) Code() int {
	switch k {
	case KindParseError:
		return -32700
	case KindInvalidRequest:
		return -32600
	case KindMethodNotFound:
		return -32601
	case KindInvalidParams:
		return -32602
	case KindInternalError:
		return -32603
	case KindProviderError:
		return -32000
	case KindModelNotFound:
		return -32001
	case KindAuthError:
		return -32002
	case KindRateLimit:
		return -32003
	default:
		return -32603
	}
}

// Error is a typed taxonomy error. It implements the standard error
// interface and carries enough structure to be serialized onto the wire
// verbatim as a JSON-RPC error object.
type Error struct {
	Kind    Kind
	Message string
	Data    map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Code returns the numeric wire code.
func (e *Error) Code() int { return e.Kind.Code() }

// New constructs a taxonomy error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a taxonomy error around an existing error.
func Wrap(kind Kind, cause error, message string) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithData attaches structured data (e.g. availableModels, retry-after) and
// returns the same error for chaining.
func (e *Error) WithData(data map[string]any) *Error {
	e.Data = data
	return e
}

// As extracts a *Error from an error chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// FromHTTPStatus classifies a bare HTTP status code the way upstream
// provider responses are classified (§7 table), for callers that only have
// a status code and a message to work with. retryAfterMs is the upstream's
// suggested retry delay in milliseconds, or 0 when none was available
// (e.g. the provider SDK in use does not surface response headers); when
// positive and status is 429 it is attached to Data as "retryAfterMs" (§7
// "data carries the server-suggested retry delay").
func FromHTTPStatus(status int, message string, retryAfterMs int) *Error {
	var err *Error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		err = New(KindAuthError, message)
	case status == http.StatusTooManyRequests:
		err = New(KindRateLimit, message)
		if retryAfterMs > 0 {
			err = err.WithData(map[string]any{"retryAfterMs": retryAfterMs})
		}
	case status >= 400 && status < 500:
		err = New(KindInvalidParams, message)
	case status >= 500:
		err = New(KindProviderError, message)
	default:
		err = New(KindProviderError, message)
	}
	return err
}

// ParseRetryAfter parses an HTTP Retry-After header value (either
// delta-seconds or an HTTP-date, per RFC 9110 §10.2.3) into milliseconds.
func ParseRetryAfter(header string) (int, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0, false
		}
		return secs * 1000, true
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return int(d.Milliseconds()), true
		}
	}
	return 0, false
}

// FromError classifies an arbitrary error by inspecting its message for the
// signals spec §7 names ("API key", 401/403, 429, timeouts). Used when a
// provider client surfaces a plain error rather than a structured one.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	if existing, ok := As(err); ok {
		return existing
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return Wrap(KindProviderError, err, ensureTimedOutSuffix(err.Error()))
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return Wrap(KindRateLimit, err, err.Error())
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "api key") || strings.Contains(msg, "unauthorized"):
		return Wrap(KindAuthError, err, err.Error())
	default:
		return Wrap(KindProviderError, err, err.Error())
	}
}

// ensureTimedOutSuffix guarantees the literal string "timed out" appears in
// the message, per spec §7 ("Timeouts include the string 'timed out'").
func ensureTimedOutSuffix(msg string) string {
	if strings.Contains(strings.ToLower(msg), "timed out") {
		return msg
	}
	return fmt.Sprintf("%s: timed out", msg)
}

// RetryAfter extracts a retry-after hint in milliseconds, if present in Data.
func (e *Error) RetryAfter() (int, bool) {
	if e.Data == nil {
		return 0, false
	}
	v, ok := e.Data["retryAfterMs"]
	if !ok {
		return 0, false
	}
	ms, ok := v.(int)
	return ms, ok
}
