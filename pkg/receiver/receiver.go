// Package receiver provides line-oriented and raw reads over one byte stream.
//
// Headers are read line by line through an internal buffer; whatever the
// buffer already holds past the header block is handed to the body reader by
// Read before the stream is touched again, so no bytes are lost when the
// caller switches from lines to raw bytes.
package receiver

import (
	"errors"
	"io"
	"time"

	"github.com/X-rus/xnet/pkg/constants"
)

var (
	// ErrLineTooLong is returned when a line exceeds the configured limit.
	ErrLineTooLong = errors.New("receiver: line too long")
	// ErrWaitTimeout is returned when no data arrives within WaitTimeout.
	ErrWaitTimeout = &waitTimeoutError{}
)

type waitTimeoutError struct{}

func (*waitTimeoutError) Error() string   { return "receiver: timed out waiting for data" }
func (*waitTimeoutError) Timeout() bool   { return true }
func (*waitTimeoutError) Temporary() bool { return true }

// Options tunes a Receiver. Zero values fall back to the package defaults.
type Options struct {
	BufferSize   int
	MaxLine      int
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

// Receiver buffers reads from an underlying stream.
type Receiver struct {
	r    io.Reader
	buf  []byte
	pos  int
	n    int
	line []byte

	maxLine      int
	pollInterval time.Duration
	waitTimeout  time.Duration
}

// New returns a Receiver reading from r.
func New(r io.Reader, opts Options) *Receiver {
	if opts.BufferSize <= 0 {
		opts.BufferSize = constants.ReceiverBufferSize
	}
	if opts.MaxLine <= 0 {
		opts.MaxLine = constants.MaxLineBytes
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = constants.DefaultPollInterval
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = constants.DefaultWaitTimeout
	}
	return &Receiver{
		r:            r,
		buf:          make([]byte, opts.BufferSize),
		line:         make([]byte, 0, constants.InitialLineSize),
		maxLine:      opts.MaxLine,
		pollInterval: opts.PollInterval,
		waitTimeout:  opts.WaitTimeout,
	}
}

// HasData reports whether bytes are buffered but not yet consumed.
func (rc *Receiver) HasData() bool {
	return rc.pos < rc.n
}

// Buffered returns the number of unconsumed buffered bytes.
func (rc *Receiver) Buffered() int {
	return rc.n - rc.pos
}

// fill reads once from the stream into the empty internal buffer.
func (rc *Receiver) fill() (int, error) {
	rc.pos, rc.n = 0, 0
	n, err := rc.r.Read(rc.buf)
	if n > 0 {
		rc.n = n
	}
	return n, err
}

// ReadLine returns the next line including its "\n" terminator. A final
// unterminated line is returned without error; the following call returns
// io.EOF.
func (rc *Receiver) ReadLine() (string, error) {
	rc.line = rc.line[:0]
	for {
		if !rc.HasData() {
			n, err := rc.fill()
			if n == 0 {
				if err == nil {
					if err = rc.WaitData(); err == nil {
						continue
					}
				}
				if err == io.EOF && len(rc.line) > 0 {
					return string(rc.line), nil
				}
				return "", err
			}
		}

		chunk := rc.buf[rc.pos:rc.n]
		end := len(chunk)
		found := false
		for i, b := range chunk {
			if b == '\n' {
				end = i + 1
				found = true
				break
			}
		}
		if len(rc.line)+end > rc.maxLine {
			return "", ErrLineTooLong
		}
		rc.appendLine(chunk[:end])
		rc.pos += end
		if found {
			return string(rc.line), nil
		}
	}
}

// appendLine grows the line buffer geometrically.
func (rc *Receiver) appendLine(p []byte) {
	need := len(rc.line) + len(p)
	if need > cap(rc.line) {
		size := cap(rc.line) * 2
		if size == 0 {
			size = constants.InitialLineSize
		}
		for size < need {
			size *= 2
		}
		grown := make([]byte, len(rc.line), size)
		copy(grown, rc.line)
		rc.line = grown
	}
	rc.line = append(rc.line, p...)
}

// Read drains buffered bytes first and reads the stream only when the buffer
// is empty.
func (rc *Receiver) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if rc.HasData() {
		n := copy(p, rc.buf[rc.pos:rc.n])
		rc.pos += n
		return n, nil
	}
	return rc.r.Read(p)
}

// WaitData blocks until at least one byte is buffered. Reads that return no
// data and no error are retried every PollInterval until WaitTimeout elapses.
func (rc *Receiver) WaitData() error {
	if rc.HasData() {
		return nil
	}
	start := time.Now()
	for {
		n, err := rc.fill()
		if n > 0 {
			return nil
		}
		if err != nil {
			return err
		}
		if time.Since(start) >= rc.waitTimeout {
			return ErrWaitTimeout
		}
		time.Sleep(rc.pollInterval)
	}
}

// ReadFull reads exactly len(p) bytes, waiting for more data on short reads.
func (rc *Receiver) ReadFull(p []byte) error {
	for off := 0; off < len(p); {
		n, err := rc.Read(p[off:])
		off += n
		if off == len(p) {
			return nil
		}
		if err != nil {
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if n == 0 {
			if err := rc.WaitData(); err != nil {
				if err == io.EOF {
					return io.ErrUnexpectedEOF
				}
				return err
			}
		}
	}
	return nil
}
