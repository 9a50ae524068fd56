// Package timing measures the phases of a request.
package timing

import (
	"fmt"
	"time"
)

// Metrics holds per-phase durations. Phases that did not run (DNS for an IP
// literal, TLS for plain HTTP, everything but TTFB on a reused connection)
// are zero.
type Metrics struct {
	DNSLookup      time.Duration `json:"dns_lookup"`
	TCPConnect     time.Duration `json:"tcp_connect"`
	ProxyHandshake time.Duration `json:"proxy_handshake"`
	TLSHandshake   time.Duration `json:"tls_handshake"`
	// TTFB is the time between the end of the request write and the first
	// response byte.
	TTFB      time.Duration `json:"ttfb"`
	TotalTime time.Duration `json:"total_time"`
}

type span struct {
	start, end time.Time
}

func (s *span) begin() { s.start = time.Now() }
func (s *span) stop()  { s.end = time.Now() }

func (s span) duration() time.Duration {
	if s.start.IsZero() || s.end.IsZero() {
		return 0
	}
	return s.end.Sub(s.start)
}

// Timer records phase boundaries. It is not safe for concurrent use.
type Timer struct {
	start time.Time
	dns   span
	tcp   span
	proxy span
	tls   span
	ttfb  span
}

// NewTimer starts a measurement.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) StartDNS()   { t.dns.begin() }
func (t *Timer) EndDNS()     { t.dns.stop() }
func (t *Timer) StartTCP()   { t.tcp.begin() }
func (t *Timer) EndTCP()     { t.tcp.stop() }
func (t *Timer) StartProxy() { t.proxy.begin() }
func (t *Timer) EndProxy()   { t.proxy.stop() }
func (t *Timer) StartTLS()   { t.tls.begin() }
func (t *Timer) EndTLS()     { t.tls.stop() }
func (t *Timer) StartTTFB()  { t.ttfb.begin() }

// EndTTFB records the first response byte. Later calls are ignored.
func (t *Timer) EndTTFB() {
	if t.ttfb.end.IsZero() {
		t.ttfb.stop()
	}
}

// Metrics returns the durations measured so far.
func (t *Timer) Metrics() Metrics {
	return Metrics{
		DNSLookup:      t.dns.duration(),
		TCPConnect:     t.tcp.duration(),
		ProxyHandshake: t.proxy.duration(),
		TLSHandshake:   t.tls.duration(),
		TTFB:           t.ttfb.duration(),
		TotalTime:      time.Since(t.start),
	}
}

// ConnectionTime is the time spent establishing the connection.
func (m Metrics) ConnectionTime() time.Duration {
	return m.DNSLookup + m.TCPConnect + m.ProxyHandshake + m.TLSHandshake
}

func (m Metrics) String() string {
	return fmt.Sprintf("dns=%v tcp=%v proxy=%v tls=%v ttfb=%v total=%v",
		m.DNSLookup, m.TCPConnect, m.ProxyHandshake, m.TLSHandshake, m.TTFB, m.TotalTime)
}
