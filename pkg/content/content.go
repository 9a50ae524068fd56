// Package content provides request body sources. A Provider reports its exact
// length before it is sent, so the serializer can emit Content-Length, and then
// writes itself to the connection.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// Common content types.
const (
	TypeOctetStream = "application/octet-stream"
	TypeTextPlain   = "text/plain"
	TypeForm        = "application/x-www-form-urlencoded"
	TypeMultipart   = "multipart/form-data"
)

// Provider is a request body.
type Provider interface {
	// ContentType returns the value for the Content-Type header.
	ContentType() string
	// Len returns the exact body length in bytes, or -1 if unknown.
	Len() int64
	// WriteTo writes the body. It may be called again when a request is resent.
	WriteTo(w io.Writer) (int64, error)
}

// Bytes is an in-memory body.
type Bytes struct {
	data        []byte
	contentType string
}

// NewBytes returns a body holding data.
func NewBytes(data []byte) *Bytes {
	return &Bytes{data: data, contentType: TypeOctetStream}
}

// WithContentType overrides the content type.
func (b *Bytes) WithContentType(ct string) *Bytes {
	b.contentType = ct
	return b
}

func (b *Bytes) ContentType() string { return b.contentType }
func (b *Bytes) Len() int64          { return int64(len(b.data)) }

func (b *Bytes) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.data)
	return int64(n), err
}

// NewString returns a UTF-8 text body.
func NewString(s string) *Bytes {
	return &Bytes{data: []byte(s), contentType: TypeTextPlain + "; charset=utf-8"}
}

// NewStringEncoded returns a text body encoded in the named charset
// (any WHATWG label such as "windows-1251" or "iso-8859-1").
func NewStringEncoded(s, charset string) (*Bytes, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("content: unknown charset %q: %w", charset, err)
	}
	data, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("content: encoding to %s: %w", charset, err)
	}
	name, _ := htmlindex.Name(enc)
	if name == "" {
		name = charset
	}
	return &Bytes{data: data, contentType: TypeTextPlain + "; charset=" + name}, nil
}

// Stream is a body read from an io.Reader.
type Stream struct {
	r           io.Reader
	length      int64
	start       int64
	written     bool
	contentType string
}

// NewStream returns a body reading from r. When length is negative and r is
// an io.Seeker the remaining length is measured by seeking; otherwise the
// body is sent with chunked framing. Seekable streams are rewound before a
// resend.
func NewStream(r io.Reader, length int64) (*Stream, error) {
	s := &Stream{r: r, length: length, contentType: TypeOctetStream}
	if seeker, ok := r.(io.Seeker); ok {
		cur, err := seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("content: stream position: %w", err)
		}
		s.start = cur
		if length < 0 {
			end, err := seeker.Seek(0, io.SeekEnd)
			if err != nil {
				return nil, fmt.Errorf("content: stream length: %w", err)
			}
			if _, err := seeker.Seek(cur, io.SeekStart); err != nil {
				return nil, fmt.Errorf("content: stream rewind: %w", err)
			}
			s.length = end - cur
		}
	}
	return s, nil
}

// WithContentType overrides the content type.
func (s *Stream) WithContentType(ct string) *Stream {
	s.contentType = ct
	return s
}

func (s *Stream) ContentType() string { return s.contentType }
func (s *Stream) Len() int64          { return s.length }

// ErrStreamConsumed is returned when a non-seekable stream is written twice.
var ErrStreamConsumed = errors.New("content: stream already consumed")

func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	if s.written {
		seeker, ok := s.r.(io.Seeker)
		if !ok {
			return 0, ErrStreamConsumed
		}
		if _, err := seeker.Seek(s.start, io.SeekStart); err != nil {
			return 0, fmt.Errorf("content: stream rewind: %w", err)
		}
	}
	s.written = true
	if s.length >= 0 {
		n, err := io.CopyN(w, s.r, s.length)
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return n, err
	}
	return io.Copy(w, s.r)
}

// File is a body read from a file on disk. Its length comes from the file
// metadata; the content is streamed on write.
type File struct {
	path        string
	size        int64
	contentType string
}

// NewFile returns a body for the file at path.
func NewFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("content: %s is a directory", path)
	}
	return &File{path: path, size: info.Size(), contentType: TypeByFileName(path)}, nil
}

// WithContentType overrides the content type.
func (f *File) WithContentType(ct string) *File {
	f.contentType = ct
	return f
}

func (f *File) ContentType() string { return f.contentType }
func (f *File) Len() int64          { return f.size }

// Name returns the base name of the file.
func (f *File) Name() string { return filepath.Base(f.path) }

func (f *File) WriteTo(w io.Writer) (int64, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return 0, fmt.Errorf("content: %w", err)
	}
	defer file.Close()
	n, err := io.CopyN(w, file, f.size)
	if err == io.EOF {
		err = fmt.Errorf("content: %s shrank while sending: %w", f.path, io.ErrUnexpectedEOF)
	}
	return n, err
}

// TypeByFileName returns the MIME type for the file extension, falling back
// to application/octet-stream.
func TypeByFileName(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return TypeOctetStream
}

// ReadAll renders a provider into memory. Intended for tests and debugging.
func ReadAll(p Provider) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := p.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
