package proxy

import (
	"fmt"
)

// Kind classifies proxy failures.
type Kind string

const (
	// KindConnectFailure means the proxy could not be reached or dropped the
	// connection during the handshake.
	KindConnectFailure Kind = "connect failure"
	// KindAuthenticationFailed means the proxy refused the credentials or
	// offered no acceptable authentication method.
	KindAuthenticationFailed Kind = "authentication failed"
	// KindCommandRejected means the proxy refused to open the tunnel.
	KindCommandRejected Kind = "command rejected"
	// KindUnsupportedAddressFamily means the destination address cannot be
	// expressed in the protocol.
	KindUnsupportedAddressFamily Kind = "unsupported address family"
	// KindMalformedResponse means the proxy reply violated the protocol.
	KindMalformedResponse Kind = "malformed response"
	// KindInvalidArgument means a precondition failed before any I/O.
	KindInvalidArgument Kind = "invalid argument"
)

// Error is returned by every proxy client. Proxy identifies the client that
// failed.
type Error struct {
	Kind       Kind
	Proxy      Client
	Reason     string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Proxy != nil {
		msg = fmt.Sprintf("proxy %s: %s", Describe(e.Proxy), msg)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

func newError(kind Kind, c Client, reason string, cause error) *Error {
	return &Error{Kind: kind, Proxy: c, Reason: reason, Cause: cause}
}
