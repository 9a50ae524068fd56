package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypes(t *testing.T) {
	tests := []struct {
		name         string
		err          *Error
		expectedType ErrorType
	}{
		{"DNS Error", NewDNSError("example.com", fmt.Errorf("lookup failed")), ErrorTypeConnect},
		{"Connect Error", NewConnectError("example.com", 443, fmt.Errorf("connection refused")), ErrorTypeConnect},
		{"TLS Error", NewTLSError("example.com", 443, fmt.Errorf("handshake failed")), ErrorTypeConnect},
		{"Send Error", NewSendError("example.com", 80, fmt.Errorf("broken pipe")), ErrorTypeSend},
		{"Receive Error", NewReceiveError("reading status line", ErrEmptyResponse), ErrorTypeReceive},
		{"Protocol Error", NewProtocolError(404, "Not Found"), ErrorTypeProtocol},
		{"Validation Error", NewValidationError("host cannot be empty"), ErrorTypeValidation},
		{"Other Error", NewOtherError("redirect limit", ErrTooManyRedirects), ErrorTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedType, tt.err.Type)
			assert.NotEmpty(t, tt.err.Error())
			assert.False(t, tt.err.Timestamp.IsZero())
			assert.Equal(t, tt.expectedType, GetErrorType(tt.err))
		})
	}
}

func TestErrorUnwrapAndSentinels(t *testing.T) {
	err := NewReceiveError("reading status line", ErrEmptyResponse)
	assert.True(t, errors.Is(err, ErrEmptyResponse))
	assert.True(t, errors.Is(err, &Error{Type: ErrorTypeReceive}))
	assert.False(t, errors.Is(err, &Error{Type: ErrorTypeSend}))

	wrapped := fmt.Errorf("call failed: %w", err)
	assert.Equal(t, ErrorTypeReceive, GetErrorType(wrapped))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, 503, StatusCode(NewProtocolError(503, "Service Unavailable")))
	assert.Equal(t, 0, StatusCode(NewReceiveError("x", nil)))
	assert.Equal(t, 0, StatusCode(nil))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTimeoutError(t *testing.T) {
	require.True(t, IsTimeoutError(NewConnectError("h", 1, timeoutErr{})))
	require.True(t, IsTimeoutError(context.DeadlineExceeded))
	require.False(t, IsTimeoutError(NewConnectError("h", 1, fmt.Errorf("refused"))))
	require.False(t, IsTimeoutError(nil))
	require.True(t, IsContextCanceled(fmt.Errorf("x: %w", context.Canceled)))
}
