package proxy

import (
	"context"
	"errors"
	"net"
)

// Chain tunnels through several proxies in order. Each hop is asked to
// connect to the next hop; the last hop connects to the destination.
// Intermediate HTTP hops always use CONNECT.
type Chain struct {
	hops []Client
}

// NewChain returns a chain of hops.
func NewChain(hops ...Client) (*Chain, error) {
	if len(hops) == 0 {
		return nil, errors.New("proxy chain needs at least one hop")
	}
	for _, h := range hops {
		if h == nil {
			return nil, errors.New("proxy chain contains a nil hop")
		}
	}
	return &Chain{hops: append([]Client(nil), hops...)}, nil
}

func (c *Chain) Type() Type { return TypeChain }

// Config returns the configuration of the first hop, which is the proxy the
// chain dials.
func (c *Chain) Config() Config { return c.hops[0].Config() }

// Hops returns a copy of the hop list.
func (c *Chain) Hops() []Client {
	return append([]Client(nil), c.hops...)
}

// CreateConnection implements Client.
func (c *Chain) CreateConnection(ctx context.Context, host string, port int, conn net.Conn) (net.Conn, error) {
	return c.connect(ctx, host, port, conn, false)
}

// connect walks the hops. With tunnelExit an HTTP exit hop uses CONNECT even
// for port 80.
func (c *Chain) connect(ctx context.Context, host string, port int, conn net.Conn, tunnelExit bool) (net.Conn, error) {
	if err := validate(c, host, port); err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, err
	}

	var err error
	for i, hop := range c.hops {
		nextHost, nextPort := host, port
		last := i == len(c.hops)-1
		if !last {
			next := c.hops[i+1].Config()
			nextHost, nextPort = next.Host, next.Port
		}

		if !last || tunnelExit {
			conn, err = Tunnel(ctx, hop, nextHost, nextPort, conn)
		} else {
			conn, err = hop.CreateConnection(ctx, nextHost, nextPort, conn)
		}
		if err != nil {
			return nil, err
		}
	}
	return conn, nil
}
