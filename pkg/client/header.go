package client

import (
	"fmt"
	"strings"

	"github.com/X-rus/xnet/pkg/errors"
)

// Field is one header line.
type Field struct {
	Name  string
	Value string
}

// Header is an insertion-ordered header list with case-insensitive names.
// The zero value is empty and ready to use.
type Header struct {
	fields []Field
}

// Add appends a field, keeping existing fields with the same name.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Set replaces every field named name with a single one. The field keeps the
// position of the first replaced field.
func (h *Header) Set(name, value string) {
	idx := -1
	out := h.fields[:0]
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			if idx >= 0 {
				continue
			}
			idx = len(out)
			f = Field{Name: name, Value: value}
		}
		out = append(out, f)
	}
	h.fields = out
	if idx < 0 {
		h.fields = append(h.fields, Field{Name: name, Value: value})
	}
}

// Get returns the first value for name.
func (h *Header) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name in order.
func (h *Header) Values(name string) []string {
	var vs []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			vs = append(vs, f.Value)
		}
	}
	return vs
}

// Has reports whether name is present.
func (h *Header) Has(name string) bool {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// Del removes every field named name.
func (h *Header) Del(name string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

func (h *Header) Len() int { return len(h.fields) }

// Fields returns a copy of the fields in order.
func (h *Header) Fields() []Field {
	return append([]Field(nil), h.fields...)
}

// Clone returns an independent copy.
func (h *Header) Clone() Header {
	return Header{fields: h.Fields()}
}

// overlay sets every field of o on h, so o wins on name clashes. Repeated
// names in o are all kept.
func (h *Header) overlay(o *Header) {
	seen := make(map[string]bool, len(o.fields))
	for _, f := range o.fields {
		k := strings.ToLower(f.Name)
		if seen[k] {
			h.Add(f.Name, f.Value)
			continue
		}
		seen[k] = true
		h.Set(f.Name, f.Value)
	}
}

func (h *Header) write(sb *strings.Builder) {
	for _, f := range h.fields {
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		sb.WriteString(f.Value)
		sb.WriteString("\r\n")
	}
}

// hasToken reports whether a comma-separated header value of name contains
// token, case-insensitively.
func (h *Header) hasToken(name, token string) bool {
	for _, v := range h.Values(name) {
		for _, t := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(t), token) {
				return true
			}
		}
	}
	return false
}

// restricted headers are generated from request state and cannot be set by
// hand.
var restricted = map[string]bool{
	"accept-encoding":  true,
	"content-length":   true,
	"content-type":     true,
	"cookie":           true,
	"connection":       true,
	"proxy-connection": true,
	"host":             true,
}

// IsRestricted reports whether name can only be produced automatically.
func IsRestricted(name string) bool {
	return restricted[strings.ToLower(strings.TrimSpace(name))]
}

func validateHeader(name, value string) error {
	if name == "" {
		return errors.NewValidationError("header name cannot be empty")
	}
	if IsRestricted(name) {
		return errors.NewValidationError(fmt.Sprintf("header %q is restricted and set automatically", name))
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c == ':' || c >= 0x7f {
			return errors.NewValidationError(fmt.Sprintf("invalid character in header name %q", name))
		}
	}
	if strings.ContainsAny(value, "\r\n") {
		return errors.NewValidationError(fmt.Sprintf("header %q value contains a line break", name))
	}
	return nil
}
