package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handshake(t *testing.T, cfg *tls.Config, addr string) error {
	t.Helper()
	conn, err := tls.Dial("tcp", addr, cfg)
	if err != nil {
		return err
	}
	return conn.Close()
}

func TestBuildStrictByDefault(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	cfg := Build(Options{ServerName: "127.0.0.1"})
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Error(t, handshake(t, cfg, srv.Listener.Addr().String()))
}

func TestBuildAcceptAll(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	cfg := Build(Options{ServerName: "127.0.0.1", AcceptAllCertificates: true})
	require.NoError(t, handshake(t, cfg, srv.Listener.Addr().String()))
}

func TestBuildValidatorSeesVerificationResult(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	var seen error
	var chainLen int
	reject := errors.New("pinned certificate mismatch")
	cfg := Build(Options{
		ServerName: "127.0.0.1",
		Validator: func(host string, chain []*x509.Certificate, verifyErr error) error {
			seen = verifyErr
			chainLen = len(chain)
			return reject
		},
	})
	err := handshake(t, cfg, srv.Listener.Addr().String())
	require.Error(t, err)
	assert.Error(t, seen)
	assert.Positive(t, chainLen)

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	cfg = Build(Options{ServerName: "127.0.0.1", RootCAs: pool, Validator: Strict})
	require.NoError(t, handshake(t, cfg, srv.Listener.Addr().String()))
}

func TestParseVersion(t *testing.T) {
	tests := map[string]uint16{
		"":        0,
		"1.2":     tls.VersionTLS12,
		"TLS1.3":  tls.VersionTLS13,
		"tls 1.0": tls.VersionTLS10,
	}
	for in, want := range tests {
		got, err := ParseVersion(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseVersion("ssl3")
	assert.Error(t, err)

	assert.Equal(t, "TLS 1.3", VersionName(tls.VersionTLS13))
	assert.Equal(t, "unknown (0x0300)", VersionName(0x0300))
}
