package client

import (
	"bytes"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/X-rus/xnet/pkg/buffer"
	"github.com/X-rus/xnet/pkg/constants"
	"github.com/X-rus/xnet/pkg/cookie"
	"github.com/X-rus/xnet/pkg/errors"
	"github.com/X-rus/xnet/pkg/timing"
	"github.com/X-rus/xnet/pkg/transport"
)

// Response is the result of one call. Its body is read lazily from the
// connection and can be consumed once, through exactly one of Bytes, Text,
// ToFile, ToMemoryStream or Discard. Later calls return empty results.
type Response struct {
	Method  string
	Address *url.URL

	// ProtocolVersion is the version from the status line, e.g. "1.1".
	ProtocolVersion string
	StatusCode      int
	Reason          string
	Header          Header

	// Cookies is the jar that received this response's Set-Cookie values.
	Cookies *cookie.Jar
	// RawCookies maps cookie names to their raw Set-Cookie text.
	RawCookies map[string]string

	// ContentLength is -1 when the length is not known in advance.
	ContentLength int64
	ContentType   string
	CharacterSet  string

	// RedirectAddress is the resolved Location (or Redirect-Location)
	// target, nil when the response does not redirect.
	RedirectAddress *url.URL

	// KeepAliveTimeout and KeepAliveMax are the server's Keep-Alive hints;
	// KeepAliveMax is -1 when absent.
	KeepAliveTimeout time.Duration
	KeepAliveMax     int

	Timings    timing.Metrics
	Connection transport.Metadata
	Reused     bool

	body       io.Reader
	wire       *countingReader
	headBytes  int64
	sentBytes  int64
	closeAfter bool
	loaded     bool
	completed  bool
	err        error
	memLimit   int64
	done       func(*Response, error)
}

// HasError reports whether the connection failed while this response was
// being read. Every body accessor then fails with ErrResponseBroken.
func (r *Response) HasError() bool {
	return r.err != nil
}

// Err returns the failure behind HasError.
func (r *Response) Err() error {
	return r.err
}

// MessageBodyLoaded reports whether the body has been consumed. It is true
// from the start for responses without a body.
func (r *Response) MessageBodyLoaded() bool {
	return r.loaded
}

// IsOK reports a 2xx status.
func (r *Response) IsOK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// HasRedirect reports whether the response names a redirect target.
func (r *Response) HasRedirect() bool {
	return r.RedirectAddress != nil
}

// BytesReceived returns the wire bytes read so far, head included.
func (r *Response) BytesReceived() int64 {
	n := r.headBytes
	if r.wire != nil {
		n += r.wire.n
	}
	return n
}

func (r *Response) broken() error {
	return errors.NewReceiveError("response body unavailable", errors.ErrResponseBroken)
}

// consume copies the whole body to w once.
func (r *Response) consume(w io.Writer) (int64, error) {
	if r.err != nil {
		return 0, r.broken()
	}
	if r.loaded {
		return 0, nil
	}
	r.loaded = true
	if r.body == nil {
		return 0, nil
	}

	n, err := io.CopyBuffer(w, r.body, make([]byte, constants.TransferBufferSize))
	if err != nil {
		rerr := errors.NewReceiveError("reading response body", err)
		r.finish(rerr)
		return n, rerr
	}
	return n, nil
}

// Bytes returns the whole body.
func (r *Response) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if r.ContentLength > 0 && r.ContentLength < constants.DefaultBodyMemLimit {
		buf.Grow(int(r.ContentLength))
	}
	if _, err := r.consume(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Text returns the body decoded from the response character set. Without a
// declared charset, HTML bodies are sniffed and everything else is taken as
// UTF-8.
func (r *Response) Text() (string, error) {
	data, err := r.Bytes()
	if err != nil || len(data) == 0 {
		return "", err
	}
	return decodeText(data, r.CharacterSet, r.ContentType), nil
}

func decodeText(data []byte, cs, contentType string) string {
	if cs == "" {
		if !strings.Contains(strings.ToLower(contentType), "html") {
			return string(data)
		}
		enc, _, _ := charset.DetermineEncoding(data, contentType)
		if out, err := enc.NewDecoder().Bytes(data); err == nil {
			return string(out)
		}
		return string(data)
	}
	switch strings.ToLower(cs) {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return string(data)
	}
	rd, err := charset.NewReaderLabel(cs, bytes.NewReader(data))
	if err != nil {
		return string(data)
	}
	out, err := io.ReadAll(rd)
	if err != nil {
		return string(data)
	}
	return string(out)
}

// ToFile writes the body to path. A body that was already consumed leaves
// the file system untouched.
func (r *Response) ToFile(path string) error {
	if r.err != nil {
		return r.broken()
	}
	if r.loaded {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.NewOtherError("creating "+path, err)
	}
	if _, err := r.consume(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.NewOtherError("closing "+path, err)
	}
	return nil
}

// ToMemoryStream returns the body in a buffer that spills to a temporary
// file past the settings' memory limit. The caller closes the buffer.
func (r *Response) ToMemoryStream() (*buffer.Buffer, error) {
	b := buffer.New(r.memLimit)
	if _, err := r.consume(b); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// Discard reads and drops the body so the connection can be reused.
func (r *Response) Discard() error {
	_, err := r.consume(io.Discard)
	return err
}

// finish runs once, when the body is fully read, failed or abandoned.
func (r *Response) finish(err error) {
	if r.completed {
		return
	}
	r.completed = true
	if err != nil {
		r.err = err
	}
	if r.done != nil {
		r.done(r, err)
	}
}
