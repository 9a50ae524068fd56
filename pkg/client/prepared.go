package client

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/X-rus/xnet/pkg/constants"
	"github.com/X-rus/xnet/pkg/content"
	"github.com/X-rus/xnet/pkg/cookie"
	"github.com/X-rus/xnet/pkg/errors"
	"github.com/X-rus/xnet/pkg/proxy"
	"github.com/X-rus/xnet/pkg/receiver"
)

// PreparedRequest is a fully resolved call: the request line, the final
// header list and the body. It owns the pending parameters that were queued
// on the Request before Prepare, so they never leak into a later call.
type PreparedRequest struct {
	Method string
	URL    *url.URL
	Body   content.Provider
	Header Header
	Proxy  proxy.Client
	// AbsoluteURI is set when the request is forwarded by an HTTP proxy
	// without a tunnel and the request line carries the full URL.
	AbsoluteURI bool
	// Cookies is the jar the response applies its cookies to (subject to
	// the lock rule).
	Cookies *cookie.Jar
}

// Host returns the destination host name.
func (pr *PreparedRequest) Host() string { return pr.URL.Hostname() }

// Port returns the destination port, defaulted from the scheme.
func (pr *PreparedRequest) Port() int { return urlPort(pr.URL) }

func urlPort(u *url.URL) int {
	if p := u.Port(); p != "" {
		n, _ := strconv.Atoi(p)
		return n
	}
	if strings.EqualFold(u.Scheme, "https") {
		return constants.DefaultHTTPSPort
	}
	return constants.DefaultHTTPPort
}

// RequestLine returns "METHOD target HTTP/1.1" without the line break.
func (pr *PreparedRequest) RequestLine() string {
	var target string
	if pr.AbsoluteURI {
		u := *pr.URL
		u.Fragment, u.RawFragment = "", ""
		target = u.String()
	} else {
		target = pr.URL.RequestURI()
	}
	return pr.Method + " " + target + " HTTP/1.1"
}

func (pr *PreparedRequest) head() string {
	var sb strings.Builder
	sb.WriteString(pr.RequestLine())
	sb.WriteString("\r\n")
	pr.Header.write(&sb)
	sb.WriteString("\r\n")
	return sb.String()
}

// methodAllowsBody reports whether the method carries a body.
func methodAllowsBody(method string) bool {
	switch method {
	case "POST", "PUT", "DELETE", "PATCH":
		return true
	}
	return false
}

func validMethod(m string) bool {
	if m == "" {
		return false
	}
	for i := 0; i < len(m); i++ {
		c := m[i]
		if c <= ' ' || c >= 0x7f || strings.IndexByte(`()<>@,;:\"/[]?={}`, c) >= 0 {
			return false
		}
	}
	return true
}

// pending is the per-call state queued on a Request.
type pending struct {
	urlParams  []content.Field
	formParams []content.Field
	multipart  *content.Multipart
	header     Header
}

// Prepare resolves address, consumes the pending per-call state and builds
// the request. The pending state is cleared even when Prepare fails.
func (r *Request) Prepare(method, address string, body content.Provider) (*PreparedRequest, error) {
	p := r.pending
	r.pending = pending{}

	method = strings.ToUpper(strings.TrimSpace(method))
	if !validMethod(method) {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid method %q", method))
	}
	u, err := r.resolveAddress(address)
	if err != nil {
		return nil, err
	}
	if len(p.urlParams) > 0 {
		extra := content.NewForm(p.urlParams...).String()
		if u.RawQuery == "" {
			u.RawQuery = extra
		} else {
			u.RawQuery += "&" + extra
		}
	}

	if body == nil {
		switch {
		case len(p.formParams) > 0:
			body = content.NewForm(p.formParams...)
		case p.multipart != nil && p.multipart.Count() > 0:
			body = p.multipart
		}
	}
	if body != nil && !methodAllowsBody(method) {
		return nil, errors.NewValidationError(fmt.Sprintf("method %s cannot carry a body", method))
	}

	px, err := r.transport.ResolveProxy(r.Proxy, u.Scheme, u.Hostname(), urlPort(u))
	if err != nil {
		return nil, err
	}

	pr := &PreparedRequest{
		Method:      method,
		URL:         u,
		Body:        body,
		Proxy:       px,
		AbsoluteURI: strings.EqualFold(u.Scheme, "http") && proxy.ForwardsPlainHTTP(px, urlPort(u)),
		Cookies:     r.Cookies,
	}
	if err := r.buildHeader(pr, &p.header); err != nil {
		return nil, err
	}
	r.address = u
	return pr, nil
}

// buildHeader generates the automatic headers, then overlays the persistent
// headers and finally the one-shot ones.
func (r *Request) buildHeader(pr *PreparedRequest, once *Header) error {
	h := &pr.Header

	host, err := hostHeader(pr.URL)
	if err != nil {
		return err
	}
	h.Set("Host", host)

	conn := "close"
	if r.KeepAlive {
		conn = "keep-alive"
	}
	if pr.AbsoluteURI {
		h.Set("Proxy-Connection", conn)
	} else {
		h.Set("Connection", conn)
	}

	if r.Username != "" || r.Password != "" {
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(r.Username+":"+r.Password)))
	}
	if pr.AbsoluteURI {
		if auth := proxy.AuthorizationHeader(pr.Proxy); auth != "" {
			h.Set("Proxy-Authorization", auth)
		}
	}
	if r.AcceptEncoding {
		h.Set("Accept-Encoding", "gzip, deflate")
	}
	if r.AcceptLanguage != "" {
		h.Set("Accept-Language", r.AcceptLanguage)
	}
	if r.AcceptCharset != "" {
		h.Set("Accept-Charset", r.AcceptCharset)
	}
	ua := r.UserAgent
	if ua == "" {
		ua = r.settings.userAgent()
	}
	h.Set("User-Agent", ua)
	if r.Referer != "" {
		h.Set("Referer", r.Referer)
	}
	if pr.Cookies != nil {
		if c := pr.Cookies.String(); c != "" {
			h.Set("Cookie", c)
		}
	}

	switch {
	case pr.Body != nil:
		if ct := pr.Body.ContentType(); ct != "" {
			h.Set("Content-Type", ct)
		}
		if n := pr.Body.Len(); n >= 0 {
			h.Set("Content-Length", strconv.FormatInt(n, 10))
		} else {
			h.Set("Transfer-Encoding", "chunked")
		}
	case methodAllowsBody(pr.Method):
		h.Set("Content-Length", "0")
	}

	h.overlay(&r.header)
	h.overlay(once)
	return nil
}

// hostHeader renders host[:port], omitting the scheme's default port.
func hostHeader(u *url.URL) (string, error) {
	host, err := proxy.ASCIIHost(u.Hostname())
	if err != nil {
		return "", errors.NewValidationError(fmt.Sprintf("invalid host %q: %v", u.Hostname(), err))
	}
	port := urlPort(u)
	isDefault := (strings.EqualFold(u.Scheme, "http") && port == constants.DefaultHTTPPort) ||
		(strings.EqualFold(u.Scheme, "https") && port == constants.DefaultHTTPSPort)
	if isDefault {
		if strings.Contains(host, ":") {
			return "[" + host + "]", nil
		}
		return host, nil
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// countingWriter sits under the write buffer, so it counts only bytes the
// connection accepted.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type progressWriter struct {
	w       io.Writer
	written int64
	report  func(written int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if n > 0 {
		p.report(p.written)
	}
	return n, err
}

// writeTo sends the head and, when the method permits one, the body. It
// returns the bytes put on the wire.
func (pr *PreparedRequest) writeTo(w io.Writer, report func(written int64)) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriterSize(cw, constants.TransferBufferSize)

	if _, err := io.WriteString(bw, pr.head()); err != nil {
		return cw.n, err
	}

	if pr.Body != nil && methodAllowsBody(pr.Method) {
		var dst io.Writer = bw
		var chunked *receiver.ChunkedWriter
		if pr.Body.Len() < 0 {
			chunked = receiver.NewChunkedWriter(bw)
			dst = chunked
		}
		if report != nil {
			dst = &progressWriter{w: dst, report: report}
		}
		if _, err := pr.Body.WriteTo(dst); err != nil {
			return cw.n, err
		}
		if chunked != nil {
			if err := chunked.Close(); err != nil {
				return cw.n, err
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}
