package content

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Multipart is a multipart/form-data body. Its length is computed from the
// item lengths, so file and stream items are never loaded into memory.
type Multipart struct {
	boundary string
	parts    []part
}

type part struct {
	header  string
	content Provider
}

// NewMultipart returns an empty multipart body with a random boundary.
func NewMultipart() *Multipart {
	return NewMultipartBoundary("----------------" + strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// NewMultipartBoundary returns an empty multipart body with a fixed boundary.
func NewMultipartBoundary(boundary string) *Multipart {
	return &Multipart{boundary: boundary}
}

// Boundary returns the boundary token.
func (m *Multipart) Boundary() string { return m.boundary }

// Count returns the number of items.
func (m *Multipart) Count() int { return len(m.parts) }

// Add appends a field item.
func (m *Multipart) Add(name string, p Provider) *Multipart {
	return m.add(name, "", p)
}

// AddFile appends a file item with the given file name.
func (m *Multipart) AddFile(name, fileName string, p Provider) *Multipart {
	return m.add(name, fileName, p)
}

// AddString appends a text field.
func (m *Multipart) AddString(name, value string) *Multipart {
	return m.add(name, "", NewString(value))
}

func (m *Multipart) add(name, fileName string, p Provider) *Multipart {
	var sb strings.Builder
	sb.WriteString("--")
	sb.WriteString(m.boundary)
	sb.WriteString("\r\n")
	fmt.Fprintf(&sb, `Content-Disposition: form-data; name="%s"`, escapeQuotes(name))
	if fileName != "" {
		fmt.Fprintf(&sb, `; filename="%s"`, escapeQuotes(fileName))
	}
	sb.WriteString("\r\n")
	sb.WriteString("Content-Type: ")
	sb.WriteString(p.ContentType())
	sb.WriteString("\r\n\r\n")
	m.parts = append(m.parts, part{header: sb.String(), content: p})
	return m
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"", "\r", "", "\n", "")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func (m *Multipart) ContentType() string {
	return TypeMultipart + "; boundary=" + m.boundary
}

func (m *Multipart) closing() string {
	return "--" + m.boundary + "--\r\n"
}

// Len returns -1 when any item has an unknown length.
func (m *Multipart) Len() int64 {
	total := int64(len(m.closing()))
	for _, p := range m.parts {
		l := p.content.Len()
		if l < 0 {
			return -1
		}
		total += int64(len(p.header)) + l + 2
	}
	return total
}

func (m *Multipart) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, p := range m.parts {
		n, err := io.WriteString(w, p.header)
		total += int64(n)
		if err != nil {
			return total, err
		}
		cn, err := p.content.WriteTo(w)
		total += cn
		if err != nil {
			return total, err
		}
		n, err = io.WriteString(w, "\r\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	n, err := io.WriteString(w, m.closing())
	total += int64(n)
	return total, err
}
