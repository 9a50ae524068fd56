// Package client implements the HTTP/1.1 request engine: a stateful Request
// session that owns one connection at a time, writes requests directly on
// the socket and decodes responses lazily.
package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/X-rus/xnet/pkg/content"
	"github.com/X-rus/xnet/pkg/cookie"
	"github.com/X-rus/xnet/pkg/errors"
	"github.com/X-rus/xnet/pkg/log"
	"github.com/X-rus/xnet/pkg/proxy"
	"github.com/X-rus/xnet/pkg/timing"
	"github.com/X-rus/xnet/pkg/transport"
)

// Request is a reusable session. It keeps persistent headers, cookies and
// the connection across calls, and is not safe for concurrent use.
type Request struct {
	// BaseAddress resolves relative addresses.
	BaseAddress *url.URL

	KeepAlive            bool
	AllowAutoRedirect    bool
	MaxRedirects         int
	IgnoreProtocolErrors bool
	AcceptEncoding       bool

	ConnectTimeout   time.Duration
	ReadWriteTimeout time.Duration

	// Username and Password produce a Basic Authorization header.
	Username string
	Password string

	Referer        string
	UserAgent      string
	AcceptLanguage string
	AcceptCharset  string

	Cookies *cookie.Jar
	Proxy   proxy.Client

	settings  Settings
	transport *transport.Transport
	logger    log.Logger
	observer  Observer

	address   *url.URL
	header    Header
	pending   pending
	conn      *connection
	last      *Response
	redirects int
}

// New returns a Request configured from s.
func New(s Settings) *Request {
	return newRequest(s, transport.New(s.Transport))
}

// NewWithTransport returns a Request that shares t with other requests.
func NewWithTransport(s Settings, t *transport.Transport) *Request {
	return newRequest(s, t)
}

func newRequest(s Settings, t *transport.Transport) *Request {
	r := &Request{
		KeepAlive:         s.KeepAlive,
		AllowAutoRedirect: s.AllowAutoRedirect,
		MaxRedirects:      s.MaxRedirects,
		AcceptEncoding:    s.AcceptEncoding,
		ConnectTimeout:    s.Transport.ConnTimeout,
		ReadWriteTimeout:  s.Transport.ReadTimeout,
		settings:          s,
		transport:         t,
		logger:            log.Or(s.Logger),
		observer:          s.Observer,
	}
	if r.observer == nil {
		r.observer = NopObserver{}
	}
	return r
}

// Address returns the last resolved address.
func (r *Request) Address() *url.URL {
	return r.address
}

// SetObserver replaces the observer taken from the settings.
func (r *Request) SetObserver(o Observer) {
	if o == nil {
		o = NopObserver{}
	}
	r.observer = o
}

// SetHeader sets a persistent header sent with every call.
func (r *Request) SetHeader(name, value string) error {
	if err := validateHeader(name, value); err != nil {
		return err
	}
	r.header.Set(name, value)
	return nil
}

// AddHeader appends a persistent header, keeping existing values.
func (r *Request) AddHeader(name, value string) error {
	if err := validateHeader(name, value); err != nil {
		return err
	}
	r.header.Add(name, value)
	return nil
}

// RemoveHeader drops a persistent header.
func (r *Request) RemoveHeader(name string) {
	r.header.Del(name)
}

// Header returns the first persistent value for name.
func (r *Request) Header(name string) string {
	return r.header.Get(name)
}

// AddHeaderOnce queues a header for the next call only. It overrides a
// persistent header of the same name.
func (r *Request) AddHeaderOnce(name, value string) error {
	if err := validateHeader(name, value); err != nil {
		return err
	}
	r.pending.header.Set(name, value)
	return nil
}

// AddURLParam queues a query parameter for the next call.
func (r *Request) AddURLParam(name, value string) *Request {
	r.pending.urlParams = append(r.pending.urlParams, content.Field{Name: name, Value: value})
	return r
}

// AddParam queues a url-encoded form field for the next call.
func (r *Request) AddParam(name, value string) *Request {
	r.pending.formParams = append(r.pending.formParams, content.Field{Name: name, Value: value})
	return r
}

func (r *Request) multipart() *content.Multipart {
	if r.pending.multipart == nil {
		r.pending.multipart = content.NewMultipart()
	}
	return r.pending.multipart
}

// AddField queues a multipart text field for the next call.
func (r *Request) AddField(name, value string) *Request {
	r.multipart().AddString(name, value)
	return r
}

// AddFile queues a multipart file part read from path.
func (r *Request) AddFile(name, path string) error {
	f, err := content.NewFile(path)
	if err != nil {
		return errors.NewValidationError(err.Error())
	}
	r.multipart().AddFile(name, f.Name(), f)
	return nil
}

// AddMultipart queues an arbitrary multipart part. fileName may be empty.
func (r *Request) AddMultipart(name, fileName string, p content.Provider) *Request {
	if fileName == "" {
		r.multipart().Add(name, p)
	} else {
		r.multipart().AddFile(name, fileName, p)
	}
	return r
}

func (r *Request) resolveAddress(address string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid address %q: %v", address, err))
	}
	if !u.IsAbs() {
		if r.BaseAddress == nil {
			return nil, errors.NewValidationError(fmt.Sprintf("relative address %q without BaseAddress", address))
		}
		u = r.BaseAddress.ResolveReference(u)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if u.Hostname() == "" {
		return nil, errors.NewValidationError(fmt.Sprintf("address %q has no host", address))
	}
	return u, nil
}

// Get sends a GET request.
func (r *Request) Get(ctx context.Context, address string) (*Response, error) {
	return r.Send(ctx, "GET", address, nil)
}

// Head sends a HEAD request.
func (r *Request) Head(ctx context.Context, address string) (*Response, error) {
	return r.Send(ctx, "HEAD", address, nil)
}

// Delete sends a DELETE request.
func (r *Request) Delete(ctx context.Context, address string) (*Response, error) {
	return r.Send(ctx, "DELETE", address, nil)
}

// Post sends a POST request. A nil body sends the queued form or multipart
// parameters, or an empty body.
func (r *Request) Post(ctx context.Context, address string, body content.Provider) (*Response, error) {
	return r.Send(ctx, "POST", address, body)
}

// Put sends a PUT request.
func (r *Request) Put(ctx context.Context, address string, body content.Provider) (*Response, error) {
	return r.Send(ctx, "PUT", address, body)
}

// Patch sends a PATCH request.
func (r *Request) Patch(ctx context.Context, address string, body content.Provider) (*Response, error) {
	return r.Send(ctx, "PATCH", address, body)
}

// Send prepares and executes a request. A 4xx or 5xx status returns both
// the response and a protocol error unless IgnoreProtocolErrors is set.
func (r *Request) Send(ctx context.Context, method, address string, body content.Provider) (*Response, error) {
	pr, err := r.Prepare(method, address, body)
	if err != nil {
		r.redirects = 0
		return nil, err
	}
	return r.Do(ctx, pr)
}

// Do executes a prepared request, following redirects when
// AllowAutoRedirect is set.
func (r *Request) Do(ctx context.Context, pr *PreparedRequest) (*Response, error) {
	resp, err := r.execute(ctx, pr, false)
	if err != nil {
		r.redirects = 0
		return resp, err
	}
	if !r.AllowAutoRedirect || !resp.HasRedirect() {
		r.redirects = 0
		return resp, nil
	}

	r.redirects++
	if r.redirects > r.MaxRedirects {
		r.redirects = 0
		r.dispose()
		return nil, errors.NewOtherError(fmt.Sprintf("more than %d redirects", r.MaxRedirects), errors.ErrTooManyRedirects)
	}

	r.logger.WithFields(map[string]interface{}{
		"from":     pr.URL.String(),
		"to":       resp.RedirectAddress.String(),
		"redirect": r.redirects,
	}).Debugf("following redirect")

	if err := resp.Discard(); err != nil {
		r.logger.WithError(err).Debugf("discarding redirect body failed")
	}
	next, err := r.Prepare("GET", resp.RedirectAddress.String(), nil)
	if err != nil {
		r.redirects = 0
		return nil, err
	}
	return r.Do(ctx, next)
}

// execute runs one exchange, retrying once on a stale keep-alive socket.
func (r *Request) execute(ctx context.Context, pr *PreparedRequest, retry bool) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewOtherError("request canceled", err)
	}

	timer := timing.NewTimer()
	reused, err := r.connect(ctx, pr, timer)
	if err != nil {
		r.dispose()
		r.complete(pr, nil, 0, reused, retry, timer, err)
		return nil, err
	}
	c := r.conn

	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	total := int64(-1)
	if pr.Body != nil {
		total = pr.Body.Len()
	}
	sent, err := pr.writeTo(c.conn, func(written int64) {
		r.observer.OnUpload(Progress{Method: pr.Method, URL: pr.URL.String(), Bytes: written, Total: total})
	})
	if err != nil {
		r.dispose()
		if ctx.Err() != nil {
			err = ctx.Err()
		} else if !retry && r.KeepAlive && reused {
			r.logger.WithError(err).Debugf("send on reused connection failed, retrying")
			return r.execute(ctx, pr, true)
		}
		serr := errors.NewSendError(pr.Host(), pr.Port(), err)
		r.complete(pr, nil, sent, reused, retry, timer, serr)
		return nil, serr
	}

	timer.StartTTFB()
	head, err := readHead(c.rc, timer)
	if err != nil {
		r.dispose()
		if ctx.Err() != nil {
			err = errors.NewReceiveError("request canceled", ctx.Err())
		} else if !retry && stderrors.Is(err, errors.ErrEmptyResponse) {
			r.logger.Debugf("empty response, retrying on a new connection")
			return r.execute(ctx, pr, true)
		}
		r.complete(pr, nil, sent, reused, retry, timer, err)
		return nil, err
	}

	resp, err := newResponse(pr, head, c.rc)
	if err != nil {
		r.dispose()
		r.complete(pr, nil, sent, reused, retry, timer, err)
		return nil, err
	}
	resp.sentBytes = sent
	resp.Reused = reused
	resp.Timings = timer.Metrics()
	resp.Connection = c.conn.Metadata()
	resp.memLimit = r.settings.BodyMemLimit
	if !r.KeepAlive {
		resp.closeAfter = true
	}
	if resp.KeepAliveMax >= 0 {
		c.keepAliveMax = resp.KeepAliveMax
	}
	if resp.KeepAliveTimeout > 0 {
		c.keepAliveTimeout = resp.KeepAliveTimeout
	}
	if br, ok := resp.body.(*bodyReader); ok {
		br.progress = func(read int64) {
			r.observer.OnDownload(Progress{Method: pr.Method, URL: pr.URL.String(), Bytes: read, Total: resp.ContentLength})
		}
	}
	resp.done = func(done *Response, err error) {
		c.lastUsed = time.Now()
		if err != nil || done.closeAfter {
			r.release(c)
		}
		r.complete(pr, done, sent, reused, retry, timer, err)
	}
	r.last = resp
	if resp.loaded {
		resp.finish(nil)
	}

	if resp.StatusCode >= 400 && !r.IgnoreProtocolErrors {
		return resp, errors.NewProtocolError(resp.StatusCode, resp.Reason)
	}
	return resp, nil
}

func (r *Request) complete(pr *PreparedRequest, resp *Response, sent int64, reused, retried bool, timer *timing.Timer, err error) {
	c := Completion{
		Method:    pr.Method,
		URL:       pr.URL.String(),
		Host:      pr.Host(),
		BytesSent: sent,
		Reused:    reused,
		Retried:   retried,
		Timings:   timer.Metrics(),
		Err:       err,
	}
	if resp != nil {
		c.StatusCode = resp.StatusCode
		c.BytesReceived = resp.BytesReceived()
	}
	r.observer.OnComplete(c)
}

// Close releases the connection. The Request stays usable; the next call
// opens a new connection.
func (r *Request) Close() error {
	r.dispose()
	r.last = nil
	r.redirects = 0
	return nil
}
