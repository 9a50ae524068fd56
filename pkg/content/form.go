package content

import (
	"io"
	"net/url"
	"strings"
)

// Field is one name/value pair.
type Field struct {
	Name  string
	Value string
}

// Form is an application/x-www-form-urlencoded body. Field order is kept.
type Form struct {
	encoded string
}

// NewForm encodes fields in the given order.
func NewForm(fields ...Field) *Form {
	var sb strings.Builder
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(f.Name))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(f.Value))
	}
	return &Form{encoded: sb.String()}
}

// NewFormValues encodes url.Values (sorted by key).
func NewFormValues(values url.Values) *Form {
	return &Form{encoded: values.Encode()}
}

func (f *Form) ContentType() string { return TypeForm }
func (f *Form) Len() int64          { return int64(len(f.encoded)) }
func (f *Form) String() string      { return f.encoded }

func (f *Form) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, f.encoded)
	return int64(n), err
}
