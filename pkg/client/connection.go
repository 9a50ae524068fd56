package client

import (
	"context"
	"strings"
	"time"

	"github.com/X-rus/xnet/pkg/errors"
	"github.com/X-rus/xnet/pkg/proxy"
	"github.com/X-rus/xnet/pkg/receiver"
	"github.com/X-rus/xnet/pkg/timing"
	"github.com/X-rus/xnet/pkg/transport"
)

// connection is the live socket a Request owns, with the identity it was
// opened for and the server's keep-alive hints.
type connection struct {
	conn   *transport.Conn
	rc     *receiver.Receiver
	scheme string
	host   string
	port   int
	proxy  proxy.Client

	requests int
	lastUsed time.Time
	// keepAliveMax is the number of further requests the server allows,
	// -1 when it gave no hint.
	keepAliveMax     int
	keepAliveTimeout time.Duration
	closed           bool
}

func (c *connection) close() {
	if c.closed {
		return
	}
	c.closed = true
	c.conn.Close()
}

// exhausted reports whether the server's keep-alive hints rule out another
// request.
func (c *connection) exhausted(now time.Time) bool {
	if c.keepAliveMax == 0 {
		return true
	}
	return c.keepAliveTimeout > 0 && now.Sub(c.lastUsed) >= c.keepAliveTimeout
}

// canReuse applies the reuse rule for the next call.
func (r *Request) canReuse(pr *PreparedRequest) bool {
	c := r.conn
	switch {
	case c == nil || c.closed || !r.KeepAlive:
		return false
	case !strings.EqualFold(c.scheme, pr.URL.Scheme):
		return false
	case !strings.EqualFold(c.host, pr.Host()) || c.port != pr.Port():
		return false
	case r.last != nil && r.last.HasError():
		return false
	case !proxy.Equal(c.proxy, pr.Proxy):
		return false
	case c.exhausted(time.Now()):
		return false
	}
	return true
}

// connect returns a connection for pr, reusing the current one when the
// reuse rule allows it. An unread previous body is drained first.
func (r *Request) connect(ctx context.Context, pr *PreparedRequest, timer *timing.Timer) (reused bool, err error) {
	if r.canReuse(pr) {
		if last := r.last; last != nil && !last.MessageBodyLoaded() {
			if derr := last.Discard(); derr != nil {
				r.logger.WithError(derr).Debugf("draining previous body failed")
			}
		}
		if r.canReuse(pr) {
			r.conn.requests++
			r.logger.WithFields(map[string]interface{}{
				"host":     pr.Host(),
				"port":     pr.Port(),
				"requests": r.conn.requests,
			}).Debugf("reusing connection")
			return true, nil
		}
	}

	r.dispose()
	conn, err := r.transport.Connect(ctx, transport.Config{
		Scheme:       strings.ToLower(pr.URL.Scheme),
		Host:         pr.Host(),
		Port:         pr.Port(),
		Proxy:        pr.Proxy,
		ConnTimeout:  r.ConnectTimeout,
		ReadTimeout:  r.ReadWriteTimeout,
		WriteTimeout: r.ReadWriteTimeout,
	}, timer)
	if err != nil {
		return false, err
	}

	r.conn = &connection{
		conn: conn,
		rc: receiver.New(conn, receiver.Options{
			PollInterval: r.settings.PollInterval,
			WaitTimeout:  r.settings.WaitTimeout,
		}),
		scheme:       pr.URL.Scheme,
		host:         pr.Host(),
		port:         pr.Port(),
		proxy:        pr.Proxy,
		requests:     1,
		lastUsed:     time.Now(),
		keepAliveMax: -1,
	}
	r.logger.WithFields(map[string]interface{}{
		"host":  pr.Host(),
		"port":  pr.Port(),
		"proxy": describeProxy(pr.Proxy),
	}).Debugf("opened connection")
	return false, nil
}

// dispose closes the current connection. A response whose body was never
// read is marked broken.
func (r *Request) dispose() {
	if last := r.last; last != nil && !last.completed {
		last.finish(errors.NewReceiveError("connection closed before the body was read", errors.ErrResponseBroken))
	}
	if r.conn != nil {
		r.conn.close()
		r.conn = nil
	}
}

// release closes c when it is no longer the current connection or must not
// be reused.
func (r *Request) release(c *connection) {
	c.close()
	if r.conn == c {
		r.conn = nil
	}
}

func describeProxy(p proxy.Client) string {
	if p == nil {
		return "direct"
	}
	return proxy.Describe(p)
}
