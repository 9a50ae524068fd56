package client

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strings"

	"github.com/X-rus/xnet/pkg/errors"
	"github.com/X-rus/xnet/pkg/receiver"
)

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// lengthReader reads exactly remaining bytes, waiting for more data on
// short reads.
type lengthReader struct {
	rc        *receiver.Receiver
	remaining int64
}

func (l *lengthReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.rc.Read(p)
	l.remaining -= int64(n)
	if n == 0 && err == nil {
		err = l.rc.WaitData()
	}
	if err == io.EOF {
		if l.remaining > 0 {
			return n, io.ErrUnexpectedEOF
		}
		if n > 0 {
			err = nil
		}
	}
	return n, err
}

var (
	htmlOpen  = []byte("<html")
	htmlClose = []byte("</html>")
)

// htmlTailLen bytes of the previous block are kept so a closing tag split
// across two reads is still found.
const htmlTailLen = len("</html>") - 1

// untilEOFReader reads until the peer closes. When the first block looks
// like HTML the body is considered complete at the first block that contains
// the closing html tag, since some servers keep the connection open anyway.
type untilEOFReader struct {
	r       io.Reader
	checked bool
	html    bool
	tail    []byte
	done    bool
}

func (u *untilEOFReader) Read(p []byte) (int, error) {
	if u.done {
		return 0, io.EOF
	}
	n, err := u.r.Read(p)
	if n > 0 {
		block := p[:n]
		if !u.checked {
			u.checked = true
			u.html = bytes.Contains(bytes.ToLower(block), htmlOpen)
		}
		if u.html {
			window := append(u.tail, block...)
			if bytes.Contains(bytes.ToLower(window), htmlClose) {
				u.done = true
			}
			if len(window) > htmlTailLen {
				window = window[len(window)-htmlTailLen:]
			}
			u.tail = append(u.tail[:0:0], window...)
		}
	}
	if u.done && err == nil {
		err = io.EOF
	}
	return n, err
}

// bodyReader decodes the framed body and reports progress. The
// decompressor is created on first read; once it reports EOF the framed
// source is drained so the connection stays aligned on the next response.
type bodyReader struct {
	resp     *Response
	wire     *countingReader
	encoding string
	decoded  io.Reader
	progress func(read int64)
}

func (b *bodyReader) init() error {
	switch b.encoding {
	case "", "identity":
		b.decoded = b.wire
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(b.wire)
		if err != nil {
			return err
		}
		b.decoded = zr
	case "deflate":
		br := bufio.NewReader(b.wire)
		if isZlibHeader(br) {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return err
			}
			b.decoded = zr
		} else {
			b.decoded = flate.NewReader(br)
		}
	default:
		return errors.NewReceiveError("content encoding "+b.encoding, errors.ErrUnsupportedEncoding)
	}
	return nil
}

// isZlibHeader reports whether the stream starts with an RFC 1950 header,
// as opposed to a raw RFC 1951 deflate stream.
func isZlibHeader(br *bufio.Reader) bool {
	h, err := br.Peek(2)
	if err != nil {
		return false
	}
	return h[0]&0x0F == 8 && h[0]>>4 <= 7 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}

func (b *bodyReader) Read(p []byte) (int, error) {
	if b.decoded == nil {
		if err := b.init(); err != nil {
			return 0, err
		}
	}
	n, err := b.decoded.Read(p)
	if n > 0 && b.progress != nil {
		b.progress(b.wire.n)
	}
	if err == io.EOF {
		if b.decoded != io.Reader(b.wire) {
			if _, derr := io.Copy(io.Discard, b.wire); derr != nil {
				return n, derr
			}
		}
		b.resp.finish(nil)
	}
	return n, err
}

// contentEncoding returns the single coding applied to the body.
func contentEncoding(h *Header) string {
	v := strings.ToLower(strings.TrimSpace(h.Get("Content-Encoding")))
	if i := strings.LastIndexByte(v, ','); i >= 0 {
		v = strings.TrimSpace(v[i+1:])
	}
	return v
}
