// Package errors provides structured error types for the xnet transport engine.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrorType represents the category of error that occurred.
type ErrorType string

const (
	// ErrorTypeConnect represents DNS, TCP connect and TLS handshake failures
	ErrorTypeConnect ErrorType = "connect"
	// ErrorTypeSend represents failures while writing the request
	ErrorTypeSend ErrorType = "send"
	// ErrorTypeReceive represents read failures and structurally invalid responses
	ErrorTypeReceive ErrorType = "receive"
	// ErrorTypeProtocol represents a 4xx/5xx status reported by the server
	ErrorTypeProtocol ErrorType = "protocol"
	// ErrorTypeValidation represents usage errors (bad arguments, restricted headers)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeOther represents everything else, e.g. the redirect limit
	ErrorTypeOther ErrorType = "other"
)

// Sentinel causes. They are attached as Cause so errors.Is finds them.
var (
	// ErrEmptyResponse means the peer closed the connection before sending a
	// single byte, typically a stale keep-alive socket.
	ErrEmptyResponse = errors.New("empty response")
	// ErrResponseBroken is returned by body accessors of a response whose
	// connection failed earlier.
	ErrResponseBroken = errors.New("response has error, body cannot be read")
	// ErrTooManyRedirects is returned when the redirect limit is exceeded.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrUnsupportedEncoding is returned for unknown Content-Encoding values.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")
)

// Error represents a structured error with context information.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Cause      error     `json:"cause,omitempty"`
	Host       string    `json:"host,omitempty"`
	Port       int       `json:"port,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target type.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Type == t.Type
	}
	return false
}

// NewConnectError creates a connect failure for host:port.
func NewConnectError(host string, port int, cause error) *Error {
	return &Error{
		Type:      ErrorTypeConnect,
		Message:   fmt.Sprintf("failed to connect to %s:%d", host, port),
		Cause:     cause,
		Host:      host,
		Port:      port,
		Timestamp: time.Now(),
	}
}

// NewDNSError creates a connect failure caused by name resolution.
func NewDNSError(host string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeConnect,
		Message:   fmt.Sprintf("DNS lookup failed for host %s", host),
		Cause:     cause,
		Host:      host,
		Timestamp: time.Now(),
	}
}

// NewTLSError creates a connect failure caused by the TLS handshake.
func NewTLSError(host string, port int, cause error) *Error {
	return &Error{
		Type:      ErrorTypeConnect,
		Message:   fmt.Sprintf("TLS handshake failed for %s:%d", host, port),
		Cause:     cause,
		Host:      host,
		Port:      port,
		Timestamp: time.Now(),
	}
}

// NewSendError creates a failure raised while writing the request.
func NewSendError(host string, port int, cause error) *Error {
	return &Error{
		Type:      ErrorTypeSend,
		Message:   fmt.Sprintf("failed to send request to %s:%d", host, port),
		Cause:     cause,
		Host:      host,
		Port:      port,
		Timestamp: time.Now(),
	}
}

// NewReceiveError creates a failure raised while reading the response.
func NewReceiveError(message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeReceive,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewProtocolError creates an error for a 4xx/5xx status.
func NewProtocolError(statusCode int, reason string) *Error {
	msg := fmt.Sprintf("server returned status %d", statusCode)
	if reason != "" {
		msg += " " + reason
	}
	return &Error{
		Type:       ErrorTypeProtocol,
		Message:    msg,
		StatusCode: statusCode,
		Timestamp:  time.Now(),
	}
}

// NewValidationError creates a usage error.
func NewValidationError(message string) *Error {
	return &Error{
		Type:      ErrorTypeValidation,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewOtherError creates an error that fits no other category.
func NewOtherError(message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeOther,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// IsTimeoutError checks if an error is a timeout error.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// GetErrorType returns the error type if it's a structured error.
func GetErrorType(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// StatusCode returns the HTTP status carried by a protocol error, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Type == ErrorTypeProtocol {
		return e.StatusCode
	}
	return 0
}

// IsContextCanceled checks if an error is due to context cancellation.
func IsContextCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
