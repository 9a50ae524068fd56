package client

import (
	"bufio"
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/X-rus/xnet/pkg/content"
	xerrors "github.com/X-rus/xnet/pkg/errors"
	"github.com/X-rus/xnet/pkg/log"
)

// The upload is larger than any loopback socket buffering, so writing it to
// a reset peer always fails.
const resetUploadSize = 32 << 20

// rawServer hands every accepted connection to handle together with its
// 1-based accept index.
func rawServer(t *testing.T, handle func(n int, conn *net.TCPConn)) (string, *int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	var accepted int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			n := int(atomic.AddInt32(&accepted, 1))
			go func() {
				defer conn.Close()
				conn.SetDeadline(time.Now().Add(5 * time.Second))
				handle(n, conn.(*net.TCPConn))
			}()
		}
	}()
	return "http://" + ln.Addr().String(), &accepted
}

// reset closes conn with an RST.
func reset(conn *net.TCPConn) {
	conn.SetLinger(0)
	conn.Close()
}

// serveOneThenReset answers one request and resets the connection.
func serveOneThenReset(conn *net.TCPConn) {
	if _, err := readRequest(bufio.NewReader(conn)); err != nil {
		return
	}
	conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
	reset(conn)
}

func debugLogger() (Settings, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s := testSettings()
	s.Logger = log.NewLogrusLogger(logger)
	return s, hook
}

func logged(hook *logtest.Hook, msg string) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			n++
		}
	}
	return n
}

const sendRetryMessage = "send on reused connection failed, retrying"

// primeReused runs one GET so that the next call reuses a connection the
// server has reset in the meantime.
func primeReused(t *testing.T, r *Request, address string) {
	t.Helper()
	resp, err := r.Get(context.Background(), address)
	require.NoError(t, err)
	require.NoError(t, resp.Discard())
	time.Sleep(50 * time.Millisecond)
}

func TestSendFailureOnReusedConnectionRetriedOnce(t *testing.T) {
	bodies := make(chan int, 1)
	address, accepted := rawServer(t, func(n int, conn *net.TCPConn) {
		if n == 1 {
			serveOneThenReset(conn)
			return
		}
		req, err := readRequest(bufio.NewReader(conn))
		if err != nil {
			return
		}
		bodies <- len(req.body)
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 6\r\n\r\nstored"))
	})

	s, hook := debugLogger()
	r := New(s)
	defer r.Close()
	primeReused(t, r, address+"/")

	resp, err := r.Post(context.Background(), address+"/upload", content.NewBytes(make([]byte, resetUploadSize)))
	require.NoError(t, err)
	assert.False(t, resp.Reused)
	text, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, "stored", text)

	assert.Equal(t, resetUploadSize, <-bodies)
	assert.EqualValues(t, 2, atomic.LoadInt32(accepted))
	assert.Equal(t, 1, logged(hook, sendRetryMessage))
}

func TestSendFailureAfterRetryIsFatal(t *testing.T) {
	address, accepted := rawServer(t, func(n int, conn *net.TCPConn) {
		if n == 1 {
			serveOneThenReset(conn)
			return
		}
		reset(conn)
	})

	s, hook := debugLogger()
	r := New(s)
	defer r.Close()
	primeReused(t, r, address+"/")

	resp, err := r.Post(context.Background(), address+"/upload", content.NewBytes(make([]byte, resetUploadSize)))
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, xerrors.ErrorTypeSend, xerrors.GetErrorType(err))
	assert.EqualValues(t, 2, atomic.LoadInt32(accepted))
	assert.Equal(t, 1, logged(hook, sendRetryMessage))
	assert.Nil(t, r.conn)
}

func TestSendFailureOnNewConnectionNotRetried(t *testing.T) {
	address, accepted := rawServer(t, func(_ int, conn *net.TCPConn) {
		reset(conn)
	})

	s, hook := debugLogger()
	r := New(s)
	defer r.Close()

	_, err := r.Post(context.Background(), address+"/upload", content.NewBytes(make([]byte, resetUploadSize)))
	require.Error(t, err)
	assert.Equal(t, xerrors.ErrorTypeSend, xerrors.GetErrorType(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(accepted))
	assert.Zero(t, logged(hook, sendRetryMessage))
}
