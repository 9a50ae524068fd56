package client

import (
	"time"

	"github.com/X-rus/xnet/pkg/constants"
	"github.com/X-rus/xnet/pkg/log"
	"github.com/X-rus/xnet/pkg/transport"
)

// Settings are shared defaults for every Request built from them. They are
// passed explicitly; the package keeps no global state.
type Settings struct {
	Transport transport.Defaults

	// UserAgent supplies the User-Agent when a request sets none. Nil sends
	// constants.DefaultUserAgent.
	UserAgent func() string

	Logger   log.Logger
	Observer Observer

	// PollInterval and WaitTimeout drive the receiver's wait-for-data loop.
	PollInterval time.Duration
	WaitTimeout  time.Duration

	// BodyMemLimit is how much of a body ToMemoryStream keeps in memory
	// before spilling to a temporary file.
	BodyMemLimit int64

	// Request defaults.
	KeepAlive         bool
	AllowAutoRedirect bool
	MaxRedirects      int
	AcceptEncoding    bool
}

// DefaultSettings returns keep-alive, auto-redirect and compression enabled
// with the library timeouts.
func DefaultSettings() Settings {
	return Settings{
		Transport: transport.Defaults{
			ConnTimeout:  constants.DefaultConnTimeout,
			DNSTimeout:   constants.DefaultDNSTimeout,
			ReadTimeout:  constants.DefaultReadWriteTimeout,
			WriteTimeout: constants.DefaultReadWriteTimeout,
		},
		PollInterval:      constants.DefaultPollInterval,
		WaitTimeout:       constants.DefaultWaitTimeout,
		BodyMemLimit:      constants.DefaultBodyMemLimit,
		KeepAlive:         true,
		AllowAutoRedirect: true,
		MaxRedirects:      constants.DefaultMaxRedirects,
		AcceptEncoding:    true,
	}
}

func (s Settings) userAgent() string {
	if s.UserAgent != nil {
		if ua := s.UserAgent(); ua != "" {
			return ua
		}
	}
	return constants.DefaultUserAgent
}
