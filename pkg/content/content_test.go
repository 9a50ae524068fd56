package content

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertLenMatches(t *testing.T, p Provider) []byte {
	t.Helper()
	data, err := ReadAll(p)
	require.NoError(t, err)
	assert.Equal(t, p.Len(), int64(len(data)))
	return data
}

func TestStringAndBytes(t *testing.T) {
	s := NewString("héllo")
	assert.Equal(t, "text/plain; charset=utf-8", s.ContentType())
	assert.Equal(t, "héllo", string(assertLenMatches(t, s)))

	b := NewBytes([]byte{1, 2, 3}).WithContentType("application/x-test")
	assert.Equal(t, "application/x-test", b.ContentType())
	assert.Equal(t, []byte{1, 2, 3}, assertLenMatches(t, b))
}

func TestStringEncoded(t *testing.T) {
	s, err := NewStringEncoded("привет", "windows-1251")
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=windows-1251", s.ContentType())
	data := assertLenMatches(t, s)
	assert.Equal(t, []byte{0xEF, 0xF0, 0xE8, 0xE2, 0xE5, 0xF2}, data)

	_, err = NewStringEncoded("x", "no-such-charset")
	assert.Error(t, err)
}

func TestStreamMeasuredAndRewound(t *testing.T) {
	r := strings.NewReader("xxpayload")
	_, _ = r.Seek(2, io.SeekStart)

	s, err := NewStream(r, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.Len())
	assert.Equal(t, "payload", string(assertLenMatches(t, s)))
	// resend rewinds to the original position
	assert.Equal(t, "payload", string(assertLenMatches(t, s)))
}

func TestStreamNonSeekable(t *testing.T) {
	s, err := NewStream(io.LimitReader(strings.NewReader("abcdef"), 6), -1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), s.Len())

	var buf bytes.Buffer
	_, err = s.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", buf.String())

	_, err = s.WriteTo(&buf)
	assert.ErrorIs(t, err, ErrStreamConsumed)
}

func TestStreamShort(t *testing.T) {
	s, err := NewStream(io.LimitReader(strings.NewReader("abc"), 3), 10)
	require.NoError(t, err)
	_, err = s.WriteTo(io.Discard)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ok":true}`), 0o600))

	f, err := NewFile(path)
	require.NoError(t, err)
	assert.Equal(t, "application/json", f.ContentType())
	assert.Equal(t, "report.json", f.Name())
	assert.Equal(t, `{"ok":true}`, string(assertLenMatches(t, f)))

	_, err = NewFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
	_, err = NewFile(t.TempDir())
	assert.Error(t, err)
}

func TestForm(t *testing.T) {
	f := NewForm(Field{"q", "a b"}, Field{"lang", "ру"}, Field{"x", "1&2"})
	assert.Equal(t, TypeForm, f.ContentType())
	assert.Equal(t, "q=a+b&lang=%D1%80%D1%83&x=1%262", string(assertLenMatches(t, f)))
}

func TestMultipartWireFormat(t *testing.T) {
	m := NewMultipartBoundary("BOUNDARY").
		AddString("name", "value").
		AddFile("upload", "a.txt", NewBytes([]byte("file-data")).WithContentType("text/plain"))

	assert.Equal(t, "multipart/form-data; boundary=BOUNDARY", m.ContentType())
	assert.Equal(t, 2, m.Count())

	want := "--BOUNDARY\r\n" +
		"Content-Disposition: form-data; name=\"name\"\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n\r\n" +
		"value\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Disposition: form-data; name=\"upload\"; filename=\"a.txt\"\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"file-data\r\n" +
		"--BOUNDARY--\r\n"
	assert.Equal(t, want, string(assertLenMatches(t, m)))
}

func TestMultipartLengthWithoutMaterializing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.bin")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{7}, 4096), 0o600))
	f, err := NewFile(path)
	require.NoError(t, err)

	m := NewMultipart().AddFile("blob", f.Name(), f)
	assert.NotEmpty(t, m.Boundary())
	assertLenMatches(t, m)

	s, err := NewStream(io.LimitReader(strings.NewReader("x"), 1), -1)
	require.NoError(t, err)
	m.Add("unknown", s)
	assert.Equal(t, int64(-1), m.Len())
}

func TestMultipartEscapesNames(t *testing.T) {
	m := NewMultipartBoundary("B").AddString("we\"ird\r\n", "v")
	data, err := ReadAll(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `name="we\"ird"`)
}
