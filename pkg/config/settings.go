package config

import (
	"fmt"

	"github.com/X-rus/xnet/pkg/client"
	"github.com/X-rus/xnet/pkg/log"
	"github.com/X-rus/xnet/pkg/proxy"
	"github.com/X-rus/xnet/pkg/tlsconfig"
)

// Logger builds the configured logger.
func (c *Config) Logger() (log.Logger, error) {
	return log.New(c.Log)
}

// ProxyClient returns the configured default proxy, or nil.
func (c *Config) ProxyClient(logger log.Logger) (proxy.Client, error) {
	base := proxy.Config{
		ConnectTimeout:   c.Proxy.ConnectTimeout,
		ReadWriteTimeout: c.Proxy.ReadWriteTimeout,
		Logger:           logger,
	}
	switch {
	case len(c.Proxy.Chain) > 0:
		return proxy.ParseChain(c.Proxy.Chain, base)
	case c.Proxy.URL != "":
		return proxy.Parse(c.Proxy.URL, base)
	}
	return nil, nil
}

// Settings converts the configuration into client settings.
func (c *Config) Settings() (client.Settings, error) {
	logger, err := c.Logger()
	if err != nil {
		return client.Settings{}, err
	}
	px, err := c.ProxyClient(logger)
	if err != nil {
		return client.Settings{}, fmt.Errorf("proxy: %w", err)
	}
	minTLS, err := tlsconfig.ParseVersion(c.TLS.MinVersion)
	if err != nil {
		return client.Settings{}, err
	}

	s := client.DefaultSettings()
	s.Transport.Proxy = px
	s.Transport.UseSystemProxy = c.Proxy.UseSystem
	s.Transport.BypassLoopback = boolValue(c.Proxy.BypassLoopback)
	s.Transport.ConnTimeout = c.Timeouts.Connect
	s.Transport.DNSTimeout = c.Timeouts.DNS
	s.Transport.ReadTimeout = c.Timeouts.ReadWrite
	s.Transport.WriteTimeout = c.Timeouts.ReadWrite
	s.Transport.AcceptAllCertificates = c.TLS.AcceptAllCertificates
	s.Transport.MinTLSVersion = minTLS
	s.Transport.Logger = logger

	s.Logger = logger
	s.PollInterval = c.Timeouts.Poll
	s.WaitTimeout = c.Timeouts.Wait
	s.BodyMemLimit = c.Request.BodyMemLimit
	s.KeepAlive = boolValue(c.Request.KeepAlive)
	s.AllowAutoRedirect = boolValue(c.Request.AllowAutoRedirect)
	s.AcceptEncoding = boolValue(c.Request.AcceptEncoding)
	s.MaxRedirects = c.Request.MaxRedirects
	if ua := c.Request.UserAgent; ua != "" {
		s.UserAgent = func() string { return ua }
	}
	return s, nil
}

// NewRequest returns a Request built from the configuration, with the
// configured headers set as persistent headers.
func (c *Config) NewRequest() (*client.Request, error) {
	s, err := c.Settings()
	if err != nil {
		return nil, err
	}
	return c.Apply(client.New(s))
}

// Apply sets the configured persistent headers on r.
func (c *Config) Apply(r *client.Request) (*client.Request, error) {
	for name, value := range c.Request.Headers {
		if err := r.SetHeader(name, value); err != nil {
			return nil, err
		}
	}
	return r, nil
}
