package receiver

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedChunk is returned for an invalid chunk size line or terminator.
var ErrMalformedChunk = errors.New("receiver: malformed chunked encoding")

// NewChunkedReader decodes a chunked body. Each chunk is read exactly, possibly
// across several socket reads; the zero-length chunk and any trailer lines end
// the body with io.EOF.
func NewChunkedReader(rc *Receiver) io.Reader {
	return &chunkedReader{rc: rc}
}

type chunkedReader struct {
	rc        *Receiver
	remaining int64
	done      bool
	err       error
}

func (c *chunkedReader) readSize() (int64, error) {
	line, err := c.rc.ReadLine()
	if err != nil {
		if err == io.EOF {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
	line = strings.TrimRight(line, "\r\n")
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" || len(line) > 15 {
		return 0, fmt.Errorf("%w: chunk size %q", ErrMalformedChunk, line)
	}
	var size int64
	for i := 0; i < len(line); i++ {
		b := line[i]
		switch {
		case '0' <= b && b <= '9':
			b -= '0'
		case 'a' <= b && b <= 'f':
			b = b - 'a' + 10
		case 'A' <= b && b <= 'F':
			b = b - 'A' + 10
		default:
			return 0, fmt.Errorf("%w: chunk size %q", ErrMalformedChunk, line)
		}
		size = size<<4 | int64(b)
	}
	return size, nil
}

// skipTrailers consumes trailer lines up to the terminating blank line.
func (c *chunkedReader) skipTrailers() error {
	for {
		line, err := c.rc.ReadLine()
		if err != nil {
			if err == io.EOF {
				// peer closed right after the last chunk
				return nil
			}
			return err
		}
		if strings.TrimRight(line, "\r\n") == "" {
			return nil
		}
	}
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.done {
		return 0, io.EOF
	}
	if c.remaining == 0 {
		size, err := c.readSize()
		if err != nil {
			c.err = err
			return 0, err
		}
		if size == 0 {
			if err := c.skipTrailers(); err != nil {
				c.err = err
				return 0, err
			}
			c.done = true
			return 0, io.EOF
		}
		c.remaining = size
	}

	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.rc.Read(p)
	c.remaining -= int64(n)
	if n == 0 && err == nil {
		err = c.rc.WaitData()
	}
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		c.err = err
		return n, err
	}

	if c.remaining == 0 {
		line, err := c.rc.ReadLine()
		if err == nil && strings.TrimRight(line, "\r\n") != "" {
			err = fmt.Errorf("%w: missing CRLF after chunk data", ErrMalformedChunk)
		}
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			c.err = err
			return n, err
		}
	}
	return n, nil
}

// ChunkedWriter frames writes as chunks. Close writes the terminating chunk.
type ChunkedWriter struct {
	w io.Writer
}

// NewChunkedWriter returns a writer emitting chunked framing on w.
func NewChunkedWriter(w io.Writer) *ChunkedWriter {
	return &ChunkedWriter{w: w}
}

func (cw *ChunkedWriter) Write(data []byte) (int, error) {
	// a zero-length chunk would terminate the body
	if len(data) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(cw.w, "%x\r\n", len(data)); err != nil {
		return 0, err
	}
	n, err := cw.w.Write(data)
	if err != nil {
		return n, err
	}
	if n != len(data) {
		return n, io.ErrShortWrite
	}
	if _, err := io.WriteString(cw.w, "\r\n"); err != nil {
		return n, err
	}
	return n, nil
}

// Close writes the final zero-length chunk and the empty trailer.
func (cw *ChunkedWriter) Close() error {
	_, err := io.WriteString(cw.w, "0\r\n\r\n")
	return err
}
