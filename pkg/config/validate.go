package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/X-rus/xnet/pkg/client"
	"github.com/X-rus/xnet/pkg/log"
	"github.com/X-rus/xnet/pkg/proxy"
	"github.com/X-rus/xnet/pkg/tlsconfig"
)

// FieldError is a validation failure for one field.
type FieldError struct {
	// Field is the dotted YAML path, e.g. "timeouts.connect".
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate checks cfg and returns a ValidationError listing every problem.
func Validate(cfg *Config) error {
	var errs []FieldError
	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateTimeouts(&cfg.Timeouts)...)
	errs = append(errs, validateTLS(&cfg.TLS)...)
	errs = append(errs, validateRequest(&cfg.Request)...)
	errs = append(errs, validateLog(&cfg.Log)...)
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateProxy(p *ProxyConfig) []FieldError {
	var errs []FieldError
	if p.URL != "" && len(p.Chain) > 0 {
		errs = append(errs, FieldError{"proxy", "url and chain are mutually exclusive"})
	}
	if p.URL != "" {
		if _, err := proxy.Parse(p.URL, proxy.Config{}); err != nil {
			errs = append(errs, FieldError{"proxy.url", err.Error()})
		}
	}
	for i, raw := range p.Chain {
		if _, err := proxy.Parse(raw, proxy.Config{}); err != nil {
			errs = append(errs, FieldError{fmt.Sprintf("proxy.chain[%d]", i), err.Error()})
		}
	}
	errs = append(errs, positive("proxy.connect_timeout", p.ConnectTimeout)...)
	errs = append(errs, positive("proxy.read_write_timeout", p.ReadWriteTimeout)...)
	return errs
}

func validateTimeouts(t *TimeoutConfig) []FieldError {
	var errs []FieldError
	errs = append(errs, positive("timeouts.connect", t.Connect)...)
	errs = append(errs, positive("timeouts.dns", t.DNS)...)
	errs = append(errs, positive("timeouts.read_write", t.ReadWrite)...)
	errs = append(errs, positive("timeouts.wait", t.Wait)...)
	errs = append(errs, positive("timeouts.poll", t.Poll)...)
	if t.Poll > 0 && t.Wait > 0 && t.Poll > t.Wait {
		errs = append(errs, FieldError{"timeouts.poll", "must not exceed timeouts.wait"})
	}
	return errs
}

func validateTLS(t *TLSConfig) []FieldError {
	if _, err := tlsconfig.ParseVersion(t.MinVersion); err != nil {
		return []FieldError{{"tls.min_version", err.Error()}}
	}
	return nil
}

func validateRequest(r *RequestConfig) []FieldError {
	var errs []FieldError
	if r.MaxRedirects < 0 {
		errs = append(errs, FieldError{"request.max_redirects", "must not be negative"})
	}
	if r.BodyMemLimit < 0 {
		errs = append(errs, FieldError{"request.body_mem_limit", "must not be negative"})
	}
	if strings.ContainsAny(r.UserAgent, "\r\n") {
		errs = append(errs, FieldError{"request.user_agent", "must not contain line breaks"})
	}
	for name, value := range r.Headers {
		if client.IsRestricted(name) {
			errs = append(errs, FieldError{"request.headers." + name, "header is set automatically"})
			continue
		}
		if name == "" || strings.ContainsAny(name, " :\r\n") || strings.ContainsAny(value, "\r\n") {
			errs = append(errs, FieldError{"request.headers." + name, "invalid header"})
		}
	}
	return errs
}

func validateLog(l *log.Config) []FieldError {
	var errs []FieldError
	if _, err := logrus.ParseLevel(l.Level); err != nil {
		errs = append(errs, FieldError{"log.level", fmt.Sprintf("invalid level %q", l.Level)})
	}
	switch strings.ToLower(l.Format) {
	case log.FormatText, log.FormatJSON:
	default:
		errs = append(errs, FieldError{"log.format", fmt.Sprintf("must be %q or %q", log.FormatText, log.FormatJSON)})
	}
	switch strings.ToLower(l.Output) {
	case log.OutputStderr, log.OutputStdout:
	case log.OutputFile:
		if l.File == "" {
			errs = append(errs, FieldError{"log.file", "required when output is file"})
		}
	default:
		errs = append(errs, FieldError{"log.output", fmt.Sprintf("invalid output %q", l.Output)})
	}
	return errs
}

func positive(field string, d time.Duration) []FieldError {
	if d <= 0 {
		return []FieldError{{field, "must be positive"}}
	}
	return nil
}
