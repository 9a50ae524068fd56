// Package constants defines magic numbers and default values used throughout xnet
package constants

import "time"

// Connection timeouts
const (
	DefaultConnTimeout      = 10 * time.Second
	DefaultReadWriteTimeout = 30 * time.Second
	DefaultDNSTimeout       = 5 * time.Second
	DefaultProxyTimeout     = 10 * time.Second
)

// Receiver polling
const (
	DefaultPollInterval = 10 * time.Millisecond
	DefaultWaitTimeout  = DefaultReadWriteTimeout
)

// HTTP limits
const (
	DefaultMaxRedirects = 5
	MaxContentLength    = 1024 * 1024 * 1024 * 1024 // 1TB
	MaxHeaderBytes      = 64 * 1024
	MaxLineBytes        = 64 * 1024
)

// Buffer sizes
const (
	ReceiverBufferSize  = 32 * 1024
	InitialLineSize     = 128
	TransferBufferSize  = 32 * 1024
	DefaultBodyMemLimit = 4 * 1024 * 1024 // 4MB
)

// Default ports
const (
	DefaultHTTPPort      = 80
	DefaultHTTPSPort     = 443
	DefaultHTTPProxyPort = 8080
	DefaultSOCKSPort     = 1080
)

// Version is the library version reported by the CLI and the default
// User-Agent.
const Version = "1.0.0"

// DefaultUserAgent is sent when neither the request nor the settings supply one.
const DefaultUserAgent = "xnet/" + Version
