// Package transport establishes the connections requests are written to:
// proxy resolution, DNS, timed TCP connect, TLS upgrade and per-operation
// deadlines.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http/httpproxy"

	"github.com/X-rus/xnet/pkg/constants"
	"github.com/X-rus/xnet/pkg/errors"
	"github.com/X-rus/xnet/pkg/log"
	"github.com/X-rus/xnet/pkg/proxy"
	"github.com/X-rus/xnet/pkg/timing"
	"github.com/X-rus/xnet/pkg/tlsconfig"
)

// Defaults are the process-wide connection settings. They are passed to New
// explicitly; there is no package-level state.
type Defaults struct {
	// Proxy is used when a request carries no proxy of its own.
	Proxy proxy.Client
	// UseSystemProxy consults HTTP_PROXY, HTTPS_PROXY and NO_PROXY when
	// neither the request nor Proxy names one.
	UseSystemProxy bool
	// SystemProxy overrides the environment lookup.
	SystemProxy *httpproxy.Config
	// BypassLoopback skips the system proxy for loopback destinations.
	BypassLoopback bool

	ConnTimeout  time.Duration
	DNSTimeout   time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// AcceptAllCertificates disables server certificate verification.
	AcceptAllCertificates bool
	Validator             tlsconfig.Validator
	MinTLSVersion         uint16
	RootCAs               *x509.CertPool

	Resolver *net.Resolver
	Logger   log.Logger
}

// Config describes one connection.
type Config struct {
	Scheme string
	Host   string
	Port   int
	// Proxy is the already resolved proxy, nil for a direct connection.
	Proxy proxy.Client

	ConnTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Transport is safe for concurrent use.
type Transport struct {
	defaults    Defaults
	resolver    *net.Resolver
	systemProxy func(*url.URL) (*url.URL, error)
	logger      log.Logger
}

// New returns a transport with the given defaults.
func New(d Defaults) *Transport {
	t := &Transport{
		defaults: d,
		resolver: d.Resolver,
		logger:   log.Or(d.Logger),
	}
	if t.resolver == nil {
		t.resolver = net.DefaultResolver
	}
	if d.UseSystemProxy {
		cfg := d.SystemProxy
		if cfg == nil {
			cfg = httpproxy.FromEnvironment()
		}
		t.systemProxy = cfg.ProxyFunc()
	}
	return t
}

// Defaults returns the transport defaults.
func (t *Transport) Defaults() Defaults {
	return t.defaults
}

// ResolveProxy picks the proxy for a destination: the request proxy, then
// Defaults.Proxy, then the system proxy when enabled.
func (t *Transport) ResolveProxy(requestProxy proxy.Client, scheme, host string, port int) (proxy.Client, error) {
	if requestProxy != nil {
		return requestProxy, nil
	}
	if t.defaults.Proxy != nil {
		return t.defaults.Proxy, nil
	}
	if t.systemProxy == nil {
		return nil, nil
	}
	if t.defaults.BypassLoopback && IsLoopback(host) {
		return nil, nil
	}

	target := &url.URL{Scheme: scheme, Host: net.JoinHostPort(host, strconv.Itoa(port))}
	pu, err := t.systemProxy(target)
	if err != nil {
		return nil, errors.NewValidationError("invalid system proxy: " + err.Error())
	}
	if pu == nil {
		return nil, nil
	}
	c, err := proxy.Parse(pu.String(), proxy.Config{
		ConnectTimeout:   t.defaults.ConnTimeout,
		ReadWriteTimeout: t.defaults.ReadTimeout,
		Logger:           t.defaults.Logger,
	})
	if err != nil {
		return nil, errors.NewValidationError("invalid system proxy: " + err.Error())
	}
	return c, nil
}

// IsLoopback reports whether host is localhost or a loopback IP.
func IsLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Connect opens a connection described by cfg. timer may be nil.
func (t *Transport) Connect(ctx context.Context, cfg Config, timer *timing.Timer) (*Conn, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if timer == nil {
		timer = timing.NewTimer()
	}

	connTimeout := firstPositive(cfg.ConnTimeout, t.defaults.ConnTimeout, constants.DefaultConnTimeout)
	logger := t.logger.WithFields(map[string]interface{}{
		"host":   cfg.Host,
		"port":   cfg.Port,
		"scheme": cfg.Scheme,
	})

	var (
		raw  net.Conn
		err  error
		meta Metadata
	)
	if cfg.Proxy != nil {
		meta.Proxy = proxy.Describe(cfg.Proxy)
		timer.StartProxy()
		if strings.EqualFold(cfg.Scheme, "https") {
			raw, err = proxy.Tunnel(ctx, cfg.Proxy, cfg.Host, cfg.Port, nil)
		} else {
			raw, err = cfg.Proxy.CreateConnection(ctx, cfg.Host, cfg.Port, nil)
		}
		timer.EndProxy()
		if err != nil {
			logger.WithError(err).Debugf("proxy connection failed")
			return nil, errors.NewConnectError(cfg.Host, cfg.Port, err)
		}
	} else {
		addr, err := t.resolve(ctx, cfg, timer)
		if err != nil {
			return nil, err
		}
		if raw, err = dial(ctx, addr, connTimeout, timer); err != nil {
			logger.WithError(err).Debugf("dial failed")
			return nil, errors.NewConnectError(cfg.Host, cfg.Port, err)
		}
	}

	if strings.EqualFold(cfg.Scheme, "https") {
		tlsConn, err := t.upgradeTLS(ctx, raw, cfg.Host, connTimeout, timer)
		if err != nil {
			raw.Close()
			logger.WithError(err).Debugf("tls handshake failed")
			return nil, errors.NewTLSError(cfg.Host, cfg.Port, err)
		}
		state := tlsConn.ConnectionState()
		meta.TLSVersion = tlsconfig.VersionName(state.Version)
		meta.TLSCipherSuite = tls.CipherSuiteName(state.CipherSuite)
		meta.TLSServerName = state.ServerName
		raw = tlsConn
	}

	meta.LocalAddr = raw.LocalAddr().String()
	meta.RemoteAddr = raw.RemoteAddr().String()
	meta.ConnectedAt = time.Now()

	c := &Conn{
		Conn:         raw,
		readTimeout:  firstPositive(cfg.ReadTimeout, t.defaults.ReadTimeout, constants.DefaultReadWriteTimeout),
		writeTimeout: firstPositive(cfg.WriteTimeout, t.defaults.WriteTimeout, constants.DefaultReadWriteTimeout),
		meta:         meta,
	}
	logger.WithField("remote", meta.RemoteAddr).Debugf("connected")
	return c, nil
}

func validateConfig(cfg Config) error {
	if cfg.Host == "" {
		return errors.NewValidationError("host cannot be empty")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535")
	}
	if !strings.EqualFold(cfg.Scheme, "http") && !strings.EqualFold(cfg.Scheme, "https") {
		return errors.NewValidationError("scheme must be http or https")
	}
	return nil
}

func (t *Transport) resolve(ctx context.Context, cfg Config, timer *timing.Timer) (string, error) {
	port := strconv.Itoa(cfg.Port)
	if net.ParseIP(cfg.Host) != nil {
		return net.JoinHostPort(cfg.Host, port), nil
	}
	host, err := proxy.ASCIIHost(cfg.Host)
	if err != nil {
		return "", errors.NewDNSError(cfg.Host, err)
	}

	timer.StartDNS()
	defer timer.EndDNS()

	lctx, cancel := context.WithTimeout(ctx, firstPositive(t.defaults.DNSTimeout, constants.DefaultDNSTimeout))
	defer cancel()

	addrs, err := t.resolver.LookupIPAddr(lctx, host)
	if err != nil {
		return "", errors.NewDNSError(cfg.Host, err)
	}
	if len(addrs) == 0 {
		return "", errors.NewDNSError(cfg.Host, errors.NewValidationError("no IP addresses found"))
	}
	return net.JoinHostPort(addrs[0].IP.String(), port), nil
}

func dial(ctx context.Context, addr string, timeout time.Duration, timer *timing.Timer) (net.Conn, error) {
	timer.StartTCP()
	defer timer.EndTCP()

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	return d.DialContext(dctx, "tcp", addr)
}

func (t *Transport) upgradeTLS(ctx context.Context, conn net.Conn, host string, timeout time.Duration, timer *timing.Timer) (*tls.Conn, error) {
	timer.StartTLS()
	defer timer.EndTLS()

	serverName, err := proxy.ASCIIHost(host)
	if err != nil {
		return nil, err
	}
	cfg := tlsconfig.Build(tlsconfig.Options{
		ServerName:            serverName,
		MinVersion:            t.defaults.MinTLSVersion,
		RootCAs:               t.defaults.RootCAs,
		AcceptAllCertificates: t.defaults.AcceptAllCertificates,
		Validator:             t.defaults.Validator,
	})
	cfg.NextProtos = []string{"http/1.1"}

	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(hctx); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

func firstPositive(ds ...time.Duration) time.Duration {
	for _, d := range ds {
		if d > 0 {
			return d
		}
	}
	return 0
}
