package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
)

const (
	socks5Version = 0x05

	socks5AuthNone         = 0x00
	socks5AuthPassword     = 0x02
	socks5AuthNoAcceptable = 0xFF
	socks5AuthVersion      = 0x01
	socks5AuthSuccess      = 0x00

	socks5CmdConnect = 0x01

	socks5AtypIPv4   = 0x01
	socks5AtypDomain = 0x03
	socks5AtypIPv6   = 0x04

	socks5Succeeded          = 0x00
	socks5AddrTypeNotSupport = 0x08
)

var socks5ReplyText = map[byte]string{
	0x01: "general SOCKS server failure",
	0x02: "connection not allowed by ruleset",
	0x03: "network unreachable",
	0x04: "host unreachable",
	0x05: "connection refused",
	0x06: "TTL expired",
	0x07: "command not supported",
	0x08: "address type not supported",
}

// SOCKS5Client implements SOCKS5 with optional username/password
// authentication.
type SOCKS5Client struct {
	cfg Config
}

// NewSOCKS5 returns a SOCKS5 client.
func NewSOCKS5(cfg Config) *SOCKS5Client {
	return &SOCKS5Client{cfg: cfg}
}

func (c *SOCKS5Client) Type() Type     { return TypeSOCKS5 }
func (c *SOCKS5Client) Config() Config { return c.cfg }

// CreateConnection implements Client.
func (c *SOCKS5Client) CreateConnection(ctx context.Context, host string, port int, conn net.Conn) (net.Conn, error) {
	return handshake(ctx, c, host, port, conn, func(conn net.Conn) error {
		if err := c.negotiate(conn); err != nil {
			return err
		}
		return c.connect(conn, host, port)
	})
}

func (c *SOCKS5Client) hasCredentials() bool {
	return c.cfg.Username != "" || c.cfg.Password != ""
}

func (c *SOCKS5Client) negotiate(conn net.Conn) error {
	method := byte(socks5AuthNone)
	if c.hasCredentials() {
		method = socks5AuthPassword
	}
	if _, err := conn.Write([]byte{socks5Version, 1, method}); err != nil {
		return ioError(c, "sending SOCKS5 greeting", err)
	}

	reply := make([]byte, 2)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return ioError(c, "reading SOCKS5 method selection", err)
	}
	if reply[0] != socks5Version {
		return newError(KindMalformedResponse, c, fmt.Sprintf("unexpected SOCKS version %d", reply[0]), nil)
	}

	switch reply[1] {
	case socks5AuthNone:
		return nil
	case socks5AuthPassword:
		return c.authenticate(conn)
	case socks5AuthNoAcceptable:
		return newError(KindAuthenticationFailed, c, "no acceptable authentication method", nil)
	default:
		return newError(KindMalformedResponse, c, fmt.Sprintf("unexpected authentication method 0x%02x", reply[1]), nil)
	}
}

// authenticate runs the RFC 1929 username/password sub-negotiation.
func (c *SOCKS5Client) authenticate(conn net.Conn) error {
	user, pass := c.cfg.Username, c.cfg.Password
	req := make([]byte, 0, 3+len(user)+len(pass))
	req = append(req, socks5AuthVersion, byte(len(user)))
	req = append(req, user...)
	req = append(req, byte(len(pass)))
	req = append(req, pass...)
	if _, err := conn.Write(req); err != nil {
		return ioError(c, "sending SOCKS5 credentials", err)
	}

	reply := make([]byte, 2)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return ioError(c, "reading SOCKS5 authentication reply", err)
	}
	if reply[1] != socks5AuthSuccess {
		return newError(KindAuthenticationFailed, c, "credentials rejected", nil)
	}
	return nil
}

func (c *SOCKS5Client) connect(conn net.Conn, host string, port int) error {
	addr, err := c.encodeAddress(host)
	if err != nil {
		return err
	}
	req := make([]byte, 0, 6+len(addr))
	req = append(req, socks5Version, socks5CmdConnect, 0x00)
	req = append(req, addr...)
	req = append(req, byte(port>>8), byte(port))
	if _, err := conn.Write(req); err != nil {
		return ioError(c, "sending SOCKS5 connect", err)
	}

	head := make([]byte, 4)
	if _, err := io.ReadFull(conn, head); err != nil {
		return ioError(c, "reading SOCKS5 reply", err)
	}
	if head[0] != socks5Version {
		return newError(KindMalformedResponse, c, fmt.Sprintf("unexpected SOCKS version %d", head[0]), nil)
	}
	if head[1] != socks5Succeeded {
		kind := KindCommandRejected
		if head[1] == socks5AddrTypeNotSupport {
			kind = KindUnsupportedAddressFamily
		}
		text, ok := socks5ReplyText[head[1]]
		if !ok {
			text = fmt.Sprintf("unknown reply code 0x%02x", head[1])
		}
		return newError(kind, c, text, nil)
	}

	// Skip BND.ADDR and BND.PORT.
	var skip int
	switch head[3] {
	case socks5AtypIPv4:
		skip = net.IPv4len
	case socks5AtypIPv6:
		skip = net.IPv6len
	case socks5AtypDomain:
		l := make([]byte, 1)
		if _, err := io.ReadFull(conn, l); err != nil {
			return ioError(c, "reading SOCKS5 bound address", err)
		}
		skip = int(l[0])
	default:
		return newError(KindMalformedResponse, c, fmt.Sprintf("unknown bound address type 0x%02x", head[3]), nil)
	}
	if _, err := io.ReadFull(conn, make([]byte, skip+2)); err != nil {
		return ioError(c, "reading SOCKS5 bound address", err)
	}
	return nil
}

func (c *SOCKS5Client) encodeAddress(host string) ([]byte, error) {
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return append([]byte{socks5AtypIPv4}, ip4...), nil
		}
		return append([]byte{socks5AtypIPv6}, ip.To16()...), nil
	}
	ascii, err := ASCIIHost(host)
	if err != nil {
		return nil, newError(KindInvalidArgument, c, "destination host is not a valid name", err)
	}
	if len(ascii) > 255 {
		return nil, newError(KindInvalidArgument, c, "destination host exceeds 255 bytes", nil)
	}
	return append([]byte{socks5AtypDomain, byte(len(ascii))}, ascii...), nil
}
