// Package tlsconfig builds client TLS configurations and holds the server
// certificate validation policy.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
)

// Validator decides whether the server certificate chain for host is
// acceptable. verifyErr is the outcome of standard chain and host name
// verification (nil when it passed). Returning nil accepts the chain.
type Validator func(host string, chain []*x509.Certificate, verifyErr error) error

// Strict accepts exactly the chains that pass standard verification.
func Strict(_ string, _ []*x509.Certificate, verifyErr error) error {
	return verifyErr
}

// AcceptAll accepts any certificate chain.
func AcceptAll(string, []*x509.Certificate, error) error {
	return nil
}

// Options configures Build.
type Options struct {
	ServerName string
	// MinVersion defaults to TLS 1.2.
	MinVersion uint16
	MaxVersion uint16
	RootCAs    *x509.CertPool

	// AcceptAllCertificates disables certificate verification. It takes
	// precedence over Validator.
	AcceptAllCertificates bool
	Validator             Validator
}

// Build returns a client configuration for one connection. Without a
// Validator the standard library verifies the chain.
func Build(o Options) *tls.Config {
	cfg := &tls.Config{
		ServerName: o.ServerName,
		MinVersion: o.MinVersion,
		MaxVersion: o.MaxVersion,
		RootCAs:    o.RootCAs,
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}

	v := o.Validator
	if o.AcceptAllCertificates {
		v = AcceptAll
	}
	if v == nil {
		return cfg
	}

	cfg.InsecureSkipVerify = true
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		return v(o.ServerName, cs.PeerCertificates, verifyChain(cs.PeerCertificates, o.ServerName, o.RootCAs))
	}
	return cfg
}

func verifyChain(chain []*x509.Certificate, host string, roots *x509.CertPool) error {
	if len(chain) == 0 {
		return errors.New("tls: server presented no certificates")
	}
	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}
	_, err := chain[0].Verify(x509.VerifyOptions{
		DNSName:       host,
		Roots:         roots,
		Intermediates: intermediates,
	})
	return err
}

var versions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

// ParseVersion accepts "1.2", "tls1.2" or "TLS 1.2". An empty string yields 0.
func ParseVersion(s string) (uint16, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "tls"))
	if v, ok := versions[s]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("unknown TLS version %q", s)
}

// VersionName returns "TLS 1.2" style names.
func VersionName(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("unknown (0x%04x)", v)
	}
}
