// Package proxy implements the client side of the HTTP CONNECT, SOCKS4,
// SOCKS4a and SOCKS5 tunneling protocols, and chains of them.
//
// Every client opens (or reuses) a TCP connection to its proxy, runs the
// handshake for one destination and hands back the connection, which from
// then on is a raw byte relay to the destination.
package proxy

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/X-rus/xnet/pkg/constants"
	"github.com/X-rus/xnet/pkg/log"
)

// Type identifies the proxy protocol.
type Type string

const (
	TypeHTTP    Type = "http"
	TypeSOCKS4  Type = "socks4"
	TypeSOCKS4a Type = "socks4a"
	TypeSOCKS5  Type = "socks5"
	TypeChain   Type = "chain"
)

const maxCredentialLen = 255

// Config is the immutable configuration of one proxy hop.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	ConnectTimeout   time.Duration
	ReadWriteTimeout time.Duration

	// Logger receives handshake debug output. Nil uses log.Default().
	Logger log.Logger
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return constants.DefaultProxyTimeout
}

func (c Config) readWriteTimeout() time.Duration {
	if c.ReadWriteTimeout > 0 {
		return c.ReadWriteTimeout
	}
	return constants.DefaultProxyTimeout
}

// Client opens tunnels to destinations through a proxy.
type Client interface {
	Type() Type
	Config() Config
	// CreateConnection returns a connection relaying to host:port. When conn
	// is nil the client dials its proxy; otherwise the handshake runs over
	// conn. On failure the connection is closed.
	CreateConnection(ctx context.Context, host string, port int, conn net.Conn) (net.Conn, error)
}

// Describe renders a client as scheme://host:port.
func Describe(c Client) string {
	if ch, ok := c.(*Chain); ok {
		parts := make([]string, 0, len(ch.hops))
		for _, h := range ch.hops {
			parts = append(parts, Describe(h))
		}
		return "chain[" + strings.Join(parts, " -> ") + "]"
	}
	return string(c.Type()) + "://" + c.Config().Address()
}

// Equal compares proxies by identity: protocol, host and port (hop by hop
// for chains). Two nil clients are equal.
func Equal(a, b Client) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Type() != b.Type() {
		return false
	}
	if ca, ok := a.(*Chain); ok {
		cb, ok := b.(*Chain)
		if !ok || len(ca.hops) != len(cb.hops) {
			return false
		}
		for i := range ca.hops {
			if !Equal(ca.hops[i], cb.hops[i]) {
				return false
			}
		}
		return true
	}
	ac, bc := a.Config(), b.Config()
	return strings.EqualFold(ac.Host, bc.Host) && ac.Port == bc.Port
}

// Exit returns the hop that talks to the destination.
func Exit(c Client) Client {
	if ch, ok := c.(*Chain); ok && len(ch.hops) > 0 {
		return Exit(ch.hops[len(ch.hops)-1])
	}
	return c
}

// ForwardsPlainHTTP reports whether a request to port is forwarded by an HTTP
// proxy without a CONNECT tunnel, in which case the request line carries the
// absolute URI.
func ForwardsPlainHTTP(c Client, port int) bool {
	if c == nil {
		return false
	}
	exit := Exit(c)
	return exit != nil && exit.Type() == TypeHTTP && port == constants.DefaultHTTPPort
}

// Tunnel is CreateConnection for streams the proxy must not interpret, such
// as TLS: an HTTP hop issues CONNECT whatever the destination port.
func Tunnel(ctx context.Context, c Client, host string, port int, conn net.Conn) (net.Conn, error) {
	switch v := c.(type) {
	case *HTTPClient:
		return v.Tunnel(ctx, host, port, conn)
	case *Chain:
		return v.connect(ctx, host, port, conn, true)
	}
	return c.CreateConnection(ctx, host, port, conn)
}

// AuthorizationHeader returns the Proxy-Authorization value of the first HTTP
// hop (searching chains recursively) that has credentials, or "".
func AuthorizationHeader(c Client) string {
	switch v := c.(type) {
	case *HTTPClient:
		return v.authorization()
	case *Chain:
		for _, h := range v.hops {
			if a := AuthorizationHeader(h); a != "" {
				return a
			}
		}
	}
	return ""
}

// ASCIIHost converts an internationalized host name to its ASCII form. IP
// literals and plain ASCII names are returned unchanged.
func ASCIIHost(host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}
	ascii := true
	for i := 0; i < len(host); i++ {
		if host[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return host, nil
	}
	return idna.Lookup.ToASCII(host)
}

func validate(c Client, host string, port int) error {
	cfg := c.Config()
	switch {
	case host == "":
		return newError(KindInvalidArgument, c, "destination host is required", nil)
	case port < 1 || port > 65535:
		return newError(KindInvalidArgument, c, "destination port must be between 1 and 65535, got "+strconv.Itoa(port), nil)
	case len(cfg.Username) > maxCredentialLen:
		return newError(KindInvalidArgument, c, "username exceeds 255 bytes", nil)
	case len(cfg.Password) > maxCredentialLen:
		return newError(KindInvalidArgument, c, "password exceeds 255 bytes", nil)
	case cfg.Host == "":
		return newError(KindInvalidArgument, c, "proxy host is required", nil)
	case cfg.Port < 1 || cfg.Port > 65535:
		return newError(KindInvalidArgument, c, "proxy port must be between 1 and 65535", nil)
	}
	return nil
}

func dialProxy(ctx context.Context, c Client) (net.Conn, error) {
	cfg := c.Config()
	dctx, cancel := context.WithTimeout(ctx, cfg.connectTimeout())
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dctx, "tcp", cfg.Address())
	if err != nil {
		return nil, newError(KindConnectFailure, c, "unable to connect to proxy", err)
	}
	return conn, nil
}

// handshake validates the destination, dials the proxy when conn is nil and
// runs fn under the read/write deadline. The deadline is cleared on success;
// the connection is closed on failure.
func handshake(ctx context.Context, c Client, host string, port int, conn net.Conn, fn func(net.Conn) error) (net.Conn, error) {
	if err := validate(c, host, port); err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, err
	}

	cfg := c.Config()
	logger := log.Or(cfg.Logger).WithFields(map[string]interface{}{
		"proxy":  Describe(c),
		"target": net.JoinHostPort(host, strconv.Itoa(port)),
	})

	if conn == nil {
		var err error
		if conn, err = dialProxy(ctx, c); err != nil {
			logger.WithError(err).Debugf("proxy dial failed")
			return nil, err
		}
	}
	if fn == nil {
		return conn, nil
	}

	deadline := time.Now().Add(cfg.readWriteTimeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, newError(KindConnectFailure, c, "setting handshake deadline", err)
	}

	if err := fn(conn); err != nil {
		conn.Close()
		logger.WithError(err).Debugf("proxy handshake failed")
		return nil, err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, newError(KindConnectFailure, c, "clearing handshake deadline", err)
	}
	logger.Debugf("proxy tunnel established")
	return conn, nil
}

// ioError wraps a read/write failure during a handshake.
func ioError(c Client, op string, err error) error {
	return newError(KindConnectFailure, c, op, err)
}
