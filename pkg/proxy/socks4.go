package proxy

import (
	"context"
	"io"
	"net"
)

const (
	socks4Version    = 0x04
	socks4CmdConnect = 0x01

	socks4Granted         = 0x5A
	socks4Rejected        = 0x5B
	socks4IdentdFailed    = 0x5C
	socks4IdentdMismatch  = 0x5D
	socks4ReplyLen        = 8
	socks4aPlaceholderEnd = 0x01
)

// destinationEncoder turns the destination host into the DSTIP field of a
// SOCKS4 request and an optional suffix appended after the user ID.
type destinationEncoder func(ctx context.Context, c Client, host string) (ip net.IP, suffix []byte, err error)

// SOCKS4Client implements SOCKS4. Host names are resolved locally to IPv4.
type SOCKS4Client struct {
	cfg      Config
	resolver *net.Resolver
}

// NewSOCKS4 returns a SOCKS4 client.
func NewSOCKS4(cfg Config) *SOCKS4Client {
	return &SOCKS4Client{cfg: cfg, resolver: net.DefaultResolver}
}

func (c *SOCKS4Client) Type() Type     { return TypeSOCKS4 }
func (c *SOCKS4Client) Config() Config { return c.cfg }

// CreateConnection implements Client.
func (c *SOCKS4Client) CreateConnection(ctx context.Context, host string, port int, conn net.Conn) (net.Conn, error) {
	return handshake(ctx, c, host, port, conn, func(conn net.Conn) error {
		return socks4Connect(ctx, c, conn, host, port, c.encode)
	})
}

func (c *SOCKS4Client) encode(ctx context.Context, self Client, host string) (net.IP, []byte, error) {
	if ip := net.ParseIP(host); ip != nil {
		ip4 := ip.To4()
		if ip4 == nil {
			return nil, nil, newError(KindUnsupportedAddressFamily, self, "SOCKS4 cannot address "+host, nil)
		}
		return ip4, nil, nil
	}
	ascii, err := ASCIIHost(host)
	if err != nil {
		return nil, nil, newError(KindInvalidArgument, self, "destination host is not a valid name", err)
	}
	ips, err := c.resolver.LookupIP(ctx, "ip4", ascii)
	if err != nil {
		return nil, nil, newError(KindConnectFailure, self, "resolving "+host, err)
	}
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil, nil
		}
	}
	return nil, nil, newError(KindUnsupportedAddressFamily, self, host+" has no IPv4 address", nil)
}

// SOCKS4aClient implements SOCKS4a: host names are sent to the proxy for
// remote resolution.
type SOCKS4aClient struct {
	cfg Config
}

// NewSOCKS4a returns a SOCKS4a client.
func NewSOCKS4a(cfg Config) *SOCKS4aClient {
	return &SOCKS4aClient{cfg: cfg}
}

func (c *SOCKS4aClient) Type() Type     { return TypeSOCKS4a }
func (c *SOCKS4aClient) Config() Config { return c.cfg }

// CreateConnection implements Client.
func (c *SOCKS4aClient) CreateConnection(ctx context.Context, host string, port int, conn net.Conn) (net.Conn, error) {
	return handshake(ctx, c, host, port, conn, func(conn net.Conn) error {
		return socks4Connect(ctx, c, conn, host, port, encodeSOCKS4a)
	})
}

// encodeSOCKS4a sends 0.0.0.1 followed by the NUL-terminated host name.
// IPv4 literals are sent directly.
func encodeSOCKS4a(_ context.Context, self Client, host string) (net.IP, []byte, error) {
	if ip := net.ParseIP(host); ip != nil {
		ip4 := ip.To4()
		if ip4 == nil {
			return nil, nil, newError(KindUnsupportedAddressFamily, self, "SOCKS4a cannot address "+host, nil)
		}
		return ip4, nil, nil
	}
	ascii, err := ASCIIHost(host)
	if err != nil {
		return nil, nil, newError(KindInvalidArgument, self, "destination host is not a valid name", err)
	}
	suffix := append([]byte(ascii), 0)
	return net.IPv4(0, 0, 0, socks4aPlaceholderEnd).To4(), suffix, nil
}

func socks4Connect(ctx context.Context, c Client, conn net.Conn, host string, port int, encode destinationEncoder) error {
	ip, suffix, err := encode(ctx, c, host)
	if err != nil {
		return err
	}

	req := make([]byte, 0, 9+len(c.Config().Username)+len(suffix))
	req = append(req, socks4Version, socks4CmdConnect, byte(port>>8), byte(port))
	req = append(req, ip...)
	req = append(req, c.Config().Username...)
	req = append(req, 0)
	req = append(req, suffix...)

	if _, err := conn.Write(req); err != nil {
		return ioError(c, "sending SOCKS4 request", err)
	}

	reply := make([]byte, socks4ReplyLen)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return ioError(c, "reading SOCKS4 reply", err)
	}

	switch reply[1] {
	case socks4Granted:
		return nil
	case socks4Rejected:
		return newError(KindCommandRejected, c, "request rejected or failed", nil)
	case socks4IdentdFailed:
		return newError(KindAuthenticationFailed, c, "proxy could not reach identd on the client", nil)
	case socks4IdentdMismatch:
		return newError(KindAuthenticationFailed, c, "identd reported a different user ID", nil)
	default:
		return newError(KindMalformedResponse, c, "unknown SOCKS4 reply code", nil)
	}
}
