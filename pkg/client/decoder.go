package client

import (
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/X-rus/xnet/pkg/constants"
	"github.com/X-rus/xnet/pkg/cookie"
	"github.com/X-rus/xnet/pkg/errors"
	"github.com/X-rus/xnet/pkg/receiver"
	"github.com/X-rus/xnet/pkg/timing"
)

// responseHead is the decoded status line and header block.
type responseHead struct {
	version string
	code    int
	reason  string
	header  Header
	bytes   int64
}

// readHead reads the status line and headers. Blank lines before the status
// line are skipped. A connection that closes before sending anything yields
// ErrEmptyResponse. Interim 1xx heads other than 101 are read and dropped,
// their bytes counted towards the final head.
func readHead(rc *receiver.Receiver, timer *timing.Timer) (*responseHead, error) {
	var interim int64
	for {
		head, err := readSingleHead(rc, timer)
		if err != nil {
			if interim > 0 && stderrors.Is(err, errors.ErrEmptyResponse) {
				return nil, errors.NewReceiveError("reading status line after interim response", io.ErrUnexpectedEOF)
			}
			return nil, err
		}
		head.bytes += interim
		if head.code >= 200 || head.code == 101 {
			return head, nil
		}
		interim = head.bytes
	}
}

func readSingleHead(rc *receiver.Receiver, timer *timing.Timer) (*responseHead, error) {
	head := &responseHead{}

	var status string
	for {
		line, err := rc.ReadLine()
		if err != nil {
			if head.bytes == 0 && isEmptyResponse(err) {
				return nil, errors.NewReceiveError("no response", errors.ErrEmptyResponse)
			}
			return nil, errors.NewReceiveError("reading status line", unexpectedEOF(err))
		}
		timer.EndTTFB()
		head.bytes += int64(len(line))
		if strings.TrimRight(line, "\r\n") != "" {
			status = line
			break
		}
		if head.bytes > constants.MaxHeaderBytes {
			return nil, errors.NewReceiveError("too many blank lines before status line", nil)
		}
	}

	var err error
	head.version, head.code, head.reason, err = parseStatusLine(status)
	if err != nil {
		return nil, err
	}

	for {
		line, err := rc.ReadLine()
		if err != nil {
			return nil, errors.NewReceiveError("reading headers", unexpectedEOF(err))
		}
		head.bytes += int64(len(line))
		if head.bytes > constants.MaxHeaderBytes {
			return nil, errors.NewReceiveError("response header exceeds limit", nil)
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}
		if trimmed[0] == ' ' || trimmed[0] == '\t' {
			if n := len(head.header.fields); n > 0 {
				head.header.fields[n-1].Value += " " + strings.TrimSpace(trimmed)
			}
			continue
		}
		name, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		head.header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return head, nil
}

func isEmptyResponse(err error) bool {
	return stderrors.Is(err, io.EOF) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.EPIPE)
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// parseStatusLine splits "HTTP/1.1 200 OK". The reason phrase is optional.
func parseStatusLine(line string) (version string, code int, reason string, err error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "HTTP/") {
		return "", 0, "", errors.NewReceiveError(fmt.Sprintf("invalid status line %q", line), nil)
	}
	proto, rest, _ := strings.Cut(line, " ")
	version = strings.TrimPrefix(proto, "HTTP/")

	rest = strings.TrimLeft(rest, " ")
	codeStr, reason, _ := strings.Cut(rest, " ")
	if len(codeStr) != 3 {
		return "", 0, "", errors.NewReceiveError(fmt.Sprintf("invalid status code in %q", line), nil)
	}
	code, convErr := strconv.Atoi(codeStr)
	if convErr != nil || code < 100 {
		return "", 0, "", errors.NewReceiveError(fmt.Sprintf("invalid status code in %q", line), convErr)
	}
	return version, code, strings.TrimSpace(reason), nil
}

// parseKeepAlive reads "timeout=5, max=100". max is -1 when absent.
func parseKeepAlive(v string) (timeout time.Duration, max int) {
	max = -1
	for _, part := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || n < 0 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "timeout":
			timeout = time.Duration(n) * time.Second
		case "max":
			max = n
		}
	}
	return timeout, max
}

// parseContentType returns the media type and the charset parameter.
func parseContentType(v string) (mediaType, cs string) {
	if v == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(v)
	if err != nil {
		mt, rest, _ := strings.Cut(v, ";")
		for _, p := range strings.Split(rest, ";") {
			k, val, _ := strings.Cut(p, "=")
			if strings.EqualFold(strings.TrimSpace(k), "charset") {
				cs = strings.Trim(strings.TrimSpace(val), `"`)
			}
		}
		return strings.ToLower(strings.TrimSpace(mt)), cs
	}
	return mt, params["charset"]
}

// selectJar applies the cookie lock rule: an unlocked jar receives the
// response's cookies in place, a locked or missing jar is replaced by a new
// one.
func selectJar(requestJar *cookie.Jar) *cookie.Jar {
	if requestJar == nil || requestJar.IsLocked() {
		return cookie.NewJar()
	}
	return requestJar
}

// newResponse builds the response for head and wires its body reader on rc.
func newResponse(pr *PreparedRequest, head *responseHead, rc *receiver.Receiver) (*Response, error) {
	resp := &Response{
		Method:          pr.Method,
		Address:         pr.URL,
		ProtocolVersion: head.version,
		StatusCode:      head.code,
		Reason:          head.reason,
		Header:          head.header,
		RawCookies:      make(map[string]string),
		ContentLength:   -1,
		KeepAliveMax:    -1,
		headBytes:       head.bytes,
	}
	h := &resp.Header

	resp.Cookies = selectJar(pr.Cookies)
	now := time.Now()
	for _, raw := range h.Values("Set-Cookie") {
		if name := resp.Cookies.Apply(raw, now); name != "" {
			resp.RawCookies[name] = raw
		}
	}

	resp.ContentType, resp.CharacterSet = parseContentType(h.Get("Content-Type"))
	if ka := h.Get("Keep-Alive"); ka != "" {
		resp.KeepAliveTimeout, resp.KeepAliveMax = parseKeepAlive(ka)
	}

	loc := h.Get("Location")
	if loc == "" {
		loc = h.Get("Redirect-Location")
	}
	if loc != "" {
		target, err := url.Parse(strings.TrimSpace(loc))
		if err != nil {
			return nil, errors.NewReceiveError(fmt.Sprintf("invalid redirect location %q", loc), err)
		}
		resp.RedirectAddress = pr.URL.ResolveReference(target)
	}

	resp.closeAfter = h.hasToken("Connection", "close") || h.hasToken("Proxy-Connection", "close") ||
		(head.version == "1.0" && !h.hasToken("Connection", "keep-alive"))

	chunked := h.hasToken("Transfer-Encoding", "chunked")
	if !chunked {
		if cl := h.Get("Content-Length"); cl != "" {
			n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
			if err != nil || n < 0 || n > constants.MaxContentLength {
				return nil, errors.NewReceiveError(fmt.Sprintf("invalid Content-Length %q", cl), err)
			}
			resp.ContentLength = n
		}
	}

	if isBodiless(pr.Method, head.code, resp.ContentLength) {
		resp.loaded = true
		return resp, nil
	}

	var framed io.Reader
	switch {
	case chunked:
		framed = receiver.NewChunkedReader(rc)
	case resp.ContentLength >= 0:
		framed = &lengthReader{rc: rc, remaining: resp.ContentLength}
	default:
		framed = &untilEOFReader{r: rc}
		resp.closeAfter = true
	}
	resp.wire = &countingReader{r: framed}
	resp.body = &bodyReader{
		resp:     resp,
		wire:     resp.wire,
		encoding: contentEncoding(h),
	}
	return resp, nil
}

func isBodiless(method string, code int, contentLength int64) bool {
	return method == "HEAD" ||
		(code >= 100 && code < 200) ||
		code == 204 ||
		code == 304 ||
		contentLength == 0
}
