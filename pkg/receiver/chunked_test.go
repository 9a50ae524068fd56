package receiver

import (
	"bytes"
	"io"
	"math/rand"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkedReaderWikipedia(t *testing.T) {
	rc := New(strings.NewReader("4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"), Options{})
	body, err := io.ReadAll(NewChunkedReader(rc))
	require.NoError(t, err)
	assert.Equal(t, "Wikipedia", string(body))
}

func TestChunkedReaderExtensionsAndTrailers(t *testing.T) {
	raw := "3;name=value\r\nabc\r\nA\r\n0123456789\r\n0\r\nX-Trailer: 1\r\n\r\nNEXT"
	rc := New(strings.NewReader(raw), Options{})
	body, err := io.ReadAll(NewChunkedReader(rc))
	require.NoError(t, err)
	assert.Equal(t, "abc0123456789", string(body))

	// bytes after the body stay available for the next response
	rest, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "NEXT", string(rest))
}

func TestChunkedRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for _, size := range []int{0, 1, 17, 4096, 100_000} {
		payload := make([]byte, size)
		rnd.Read(payload)

		var wire bytes.Buffer
		cw := NewChunkedWriter(&wire)
		for off := 0; off < len(payload); {
			n := 1 + rnd.Intn(3000)
			if off+n > len(payload) {
				n = len(payload) - off
			}
			_, err := cw.Write(payload[off : off+n])
			require.NoError(t, err)
			off += n
		}
		// empty writes must not terminate the body early
		_, err := cw.Write(nil)
		require.NoError(t, err)
		require.NoError(t, cw.Close())

		rc := New(iotest.OneByteReader(&wire), Options{BufferSize: 13})
		got, err := io.ReadAll(NewChunkedReader(rc))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(payload, got), "size %d", size)
	}
}

func TestChunkedReaderMalformed(t *testing.T) {
	tests := map[string]string{
		"bad size":      "zz\r\nabc\r\n0\r\n\r\n",
		"missing crlf":  "3\r\nabcX\r\n0\r\n\r\n",
		"truncated":     "a\r\nabc",
		"no terminator": "3\r\nabc\r\n",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			rc := New(strings.NewReader(raw), Options{})
			_, err := io.ReadAll(NewChunkedReader(rc))
			assert.Error(t, err)
		})
	}
}
