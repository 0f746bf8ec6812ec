// Package apperr defines the relay's failure kinds and their HTTP mapping.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// InternalMessage is the client-facing message for unexpected faults.
const InternalMessage = "The relay hit an unexpected internal error."

// Kind classifies a relay failure.
type Kind int

const (
	Internal Kind = iota
	Configuration
	Authentication
	Connection
	Timeout
	UpstreamStatus
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration_error"
	case Authentication:
		return "authentication_error"
	case Connection:
		return "connection_error"
	case Timeout:
		return "timeout_error"
	case UpstreamStatus:
		return "upstream_status_error"
	default:
		return "internal_error"
	}
}

// Error is the single error type returned by the token provider and the
// agent relay. Message is safe to show to API clients.
type Error struct {
	Kind Kind

	// StatusCode and Body are set for UpstreamStatus.
	StatusCode int
	Body       string

	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an Error of the given kind with err as the cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Upstream returns an UpstreamStatus error carrying the upstream status and body.
func Upstream(statusCode int, body string) *Error {
	return &Error{
		Kind:       UpstreamStatus,
		StatusCode: statusCode,
		Body:       body,
		Message:    fmt.Sprintf("agent responded with status %d", statusCode),
	}
}

// As extracts the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err. Errors not created by this package are Internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps err to the status code returned to API clients.
// Upstream statuses of 400 and above pass through; anything else an upstream
// returns outside 2xx becomes 502.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case Configuration, Internal:
		return http.StatusInternalServerError
	case Authentication:
		return http.StatusUnauthorized
	case Connection:
		return http.StatusServiceUnavailable
	case Timeout:
		return http.StatusGatewayTimeout
	case UpstreamStatus:
		if e.StatusCode >= http.StatusBadRequest && e.StatusCode <= 599 {
			return e.StatusCode
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Detail is the text placed in the client-facing error body.
func Detail(err error) string {
	e, ok := As(err)
	if !ok {
		return err.Error()
	}
	if e.Kind == UpstreamStatus && e.Body != "" {
		return e.Body
	}
	return e.Message
}

// Classify turns a transport error from an outbound call into an Error.
// Timeouts are checked first, so a dial that runs out of time is a Timeout
// rather than a Connection failure. timeoutMsg and connMsg become the
// client-facing message.
func Classify(err error, timeoutMsg, connMsg string) *Error {
	if e, ok := As(err); ok {
		return e
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Wrap(Timeout, timeoutMsg, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return Wrap(Connection, connMsg, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Wrap(Connection, connMsg, err)
	}

	return Wrap(Internal, "unexpected error calling upstream", err)
}
