// Package buffer holds response bodies in memory and spills them to a
// temporary file once they outgrow a threshold.
package buffer

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/X-rus/xnet/pkg/constants"
	"github.com/X-rus/xnet/pkg/errors"
)

// Buffer is safe for concurrent use. Close removes the temporary file.
type Buffer struct {
	mu     sync.Mutex
	mem    bytes.Buffer
	file   *os.File
	size   int64
	limit  int64
	closed bool
}

// New returns a buffer that keeps up to limit bytes in memory. A
// non-positive limit selects constants.DefaultBodyMemLimit.
func New(limit int64) *Buffer {
	if limit <= 0 {
		limit = constants.DefaultBodyMemLimit
	}
	return &Buffer{limit: limit}
}

// Write appends p.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errors.NewOtherError("buffer is closed", nil)
	}
	if b.file == nil && int64(b.mem.Len()+len(p)) <= b.limit {
		n, _ := b.mem.Write(p)
		b.size += int64(n)
		return n, nil
	}
	if b.file == nil {
		if err := b.spillLocked(); err != nil {
			return 0, err
		}
	}
	n, err := b.file.Write(p)
	b.size += int64(n)
	if err != nil {
		return n, errors.NewOtherError("writing buffer file", err)
	}
	return n, nil
}

func (b *Buffer) spillLocked() error {
	f, err := os.CreateTemp("", "xnet-buffer-*.tmp")
	if err != nil {
		return errors.NewOtherError("creating buffer file", err)
	}
	if _, err := f.Write(b.mem.Bytes()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return errors.NewOtherError("writing buffer file", err)
	}
	b.file = f
	b.mem = bytes.Buffer{}
	return nil
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Spilled reports whether the content lives in a temporary file.
func (b *Buffer) Spilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file != nil
}

// Bytes returns the content. A spilled buffer is read back from disk.
func (b *Buffer) Bytes() ([]byte, error) {
	r, err := b.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Reader returns an independent reader positioned at the start of the
// content. Readers of a spilled buffer must be closed before the buffer.
func (b *Buffer) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.NewOtherError("buffer is closed", nil)
	}
	if b.file == nil {
		return io.NopCloser(bytes.NewReader(b.mem.Bytes())), nil
	}
	f, err := os.Open(b.file.Name())
	if err != nil {
		return nil, errors.NewOtherError("opening buffer file", err)
	}
	return f, nil
}

// WriteTo copies the content to w.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	r, err := b.Reader()
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return io.Copy(w, r)
}

// Close releases the temporary file. It is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.mem = bytes.Buffer{}
	if b.file == nil {
		return nil
	}
	name := b.file.Name()
	err := b.file.Close()
	if rmErr := os.Remove(name); rmErr != nil && err == nil {
		err = rmErr
	}
	b.file = nil
	if err != nil {
		return errors.NewOtherError("removing buffer file", err)
	}
	return nil
}
