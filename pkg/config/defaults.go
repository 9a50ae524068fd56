package config

import (
	"github.com/X-rus/xnet/pkg/constants"
	"github.com/X-rus/xnet/pkg/log"
)

// Default values not already covered by the constants package.
const (
	DefaultLogLevel  = "warn"
	DefaultLogFormat = log.FormatText
	DefaultTLSMin    = "1.2"
)

// ApplyDefaults fills every unset field.
func ApplyDefaults(cfg *Config) {
	if cfg.Proxy.BypassLoopback == nil {
		cfg.Proxy.BypassLoopback = boolPtr(true)
	}
	if cfg.Proxy.ConnectTimeout == 0 {
		cfg.Proxy.ConnectTimeout = constants.DefaultProxyTimeout
	}
	if cfg.Proxy.ReadWriteTimeout == 0 {
		cfg.Proxy.ReadWriteTimeout = constants.DefaultProxyTimeout
	}

	if cfg.Timeouts.Connect == 0 {
		cfg.Timeouts.Connect = constants.DefaultConnTimeout
	}
	if cfg.Timeouts.DNS == 0 {
		cfg.Timeouts.DNS = constants.DefaultDNSTimeout
	}
	if cfg.Timeouts.ReadWrite == 0 {
		cfg.Timeouts.ReadWrite = constants.DefaultReadWriteTimeout
	}
	if cfg.Timeouts.Wait == 0 {
		cfg.Timeouts.Wait = constants.DefaultWaitTimeout
	}
	if cfg.Timeouts.Poll == 0 {
		cfg.Timeouts.Poll = constants.DefaultPollInterval
	}

	if cfg.TLS.MinVersion == "" {
		cfg.TLS.MinVersion = DefaultTLSMin
	}

	if cfg.Request.KeepAlive == nil {
		cfg.Request.KeepAlive = boolPtr(true)
	}
	if cfg.Request.AllowAutoRedirect == nil {
		cfg.Request.AllowAutoRedirect = boolPtr(true)
	}
	if cfg.Request.AcceptEncoding == nil {
		cfg.Request.AcceptEncoding = boolPtr(true)
	}
	if cfg.Request.MaxRedirects == 0 {
		cfg.Request.MaxRedirects = constants.DefaultMaxRedirects
	}
	if cfg.Request.BodyMemLimit == 0 {
		cfg.Request.BodyMemLimit = constants.DefaultBodyMemLimit
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = log.OutputStderr
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
