package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnvOverrides.
const (
	EnvProxy                 = "XNET_PROXY"
	EnvUserAgent             = "XNET_USER_AGENT"
	EnvAcceptAllCertificates = "XNET_ACCEPT_ALL_CERTIFICATES"
	EnvLogLevel              = "XNET_LOG_LEVEL"
)

// Load reads path, applies defaults and environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("configuration file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML and runs the same steps as Load.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document decodes to io.EOF and means "all defaults".
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv returns the defaults with environment overrides applied, for runs
// without a configuration file.
func FromEnv() (*Config, error) {
	cfg := Default()
	ApplyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides replaces fields with XNET_* environment variables.
// Unparseable boolean values are ignored.
func ApplyEnvOverrides(cfg *Config) {
	if val := os.Getenv(EnvProxy); val != "" {
		cfg.Proxy.URL = val
		cfg.Proxy.Chain = nil
	}
	if val := os.Getenv(EnvUserAgent); val != "" {
		cfg.Request.UserAgent = val
	}
	if val := os.Getenv(EnvAcceptAllCertificates); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.TLS.AcceptAllCertificates = b
		}
	}
	if val := os.Getenv(EnvLogLevel); val != "" {
		cfg.Log.Level = val
	}
}
