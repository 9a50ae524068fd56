package proxy

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
)

const maxConnectReplyBytes = 16 * 1024

// HTTPClient tunnels through an HTTP proxy with the CONNECT method. Requests
// to port 80 are not tunneled: the connection to the proxy is returned as is
// and the caller forwards an absolute-URI request over it.
type HTTPClient struct {
	cfg Config
}

// NewHTTP returns an HTTP proxy client.
func NewHTTP(cfg Config) *HTTPClient {
	return &HTTPClient{cfg: cfg}
}

func (c *HTTPClient) Type() Type     { return TypeHTTP }
func (c *HTTPClient) Config() Config { return c.cfg }

func (c *HTTPClient) authorization() string {
	if c.cfg.Username == "" && c.cfg.Password == "" {
		return ""
	}
	token := base64.StdEncoding.EncodeToString([]byte(c.cfg.Username + ":" + c.cfg.Password))
	return "Basic " + token
}

// CreateConnection implements Client.
func (c *HTTPClient) CreateConnection(ctx context.Context, host string, port int, conn net.Conn) (net.Conn, error) {
	if port == 80 {
		return handshake(ctx, c, host, port, conn, nil)
	}
	return c.Tunnel(ctx, host, port, conn)
}

// Tunnel always issues CONNECT, whatever the destination port.
func (c *HTTPClient) Tunnel(ctx context.Context, host string, port int, conn net.Conn) (net.Conn, error) {
	return handshake(ctx, c, host, port, conn, func(conn net.Conn) error {
		return c.connect(conn, host, port)
	})
}

func (c *HTTPClient) connect(conn net.Conn, host string, port int) error {
	ascii, err := ASCIIHost(host)
	if err != nil {
		return newError(KindInvalidArgument, c, "destination host is not a valid name", err)
	}
	target := net.JoinHostPort(ascii, strconv.Itoa(port))

	var sb strings.Builder
	sb.WriteString("CONNECT " + target + " HTTP/1.1\r\n")
	sb.WriteString("Host: " + target + "\r\n")
	if auth := c.authorization(); auth != "" {
		sb.WriteString("Proxy-Authorization: " + auth + "\r\n")
	}
	sb.WriteString("Proxy-Connection: Keep-Alive\r\n\r\n")

	if _, err := io.WriteString(conn, sb.String()); err != nil {
		return ioError(c, "sending CONNECT", err)
	}

	statusLine, err := readReplyHead(conn)
	if err != nil {
		if errors.Is(err, errReplyTooLarge) {
			return newError(KindMalformedResponse, c, "CONNECT reply header too large", nil)
		}
		return ioError(c, "reading CONNECT reply", err)
	}

	fields := strings.Fields(statusLine)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return newError(KindMalformedResponse, c, "invalid status line "+strconv.Quote(statusLine), nil)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil || code < 100 || code > 999 {
		return newError(KindMalformedResponse, c, "invalid status code "+strconv.Quote(fields[1]), nil)
	}
	if code == 200 {
		return nil
	}

	kind := KindCommandRejected
	if code == 407 {
		kind = KindAuthenticationFailed
	}
	e := newError(kind, c, "proxy replied "+strings.Join(fields[1:], " "), nil)
	e.StatusCode = code
	return e
}

var errReplyTooLarge = errors.New("reply too large")

// readReplyHead reads the reply header block one byte at a time so that no
// byte belonging to the tunneled stream is consumed. It returns the status
// line.
func readReplyHead(r io.Reader) (string, error) {
	var buf bytes.Buffer
	b := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, b); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return "", err
		}
		buf.WriteByte(b[0])
		data := buf.Bytes()
		if bytes.HasSuffix(data, []byte("\r\n\r\n")) || bytes.HasSuffix(data, []byte("\n\n")) {
			break
		}
		if buf.Len() > maxConnectReplyBytes {
			return "", errReplyTooLarge
		}
	}
	line, _, _ := strings.Cut(buf.String(), "\n")
	return strings.TrimRight(line, "\r"), nil
}
