// Package metrics exports request statistics to Prometheus. A Collector is a
// client.Observer: install it through client.Settings.Observer or
// Request.SetObserver and register it once with a prometheus.Registerer.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/X-rus/xnet/pkg/client"
	"github.com/X-rus/xnet/pkg/errors"
)

// Config names the metrics and sets the latency buckets.
type Config struct {
	Namespace string
	Subsystem string
	// DurationBuckets are in seconds and apply to the total and TTFB
	// histograms.
	DurationBuckets []float64
}

// Collector aggregates client notifications into Prometheus metrics.
//
// Metrics:
//   - xnet_client_requests_total: completed exchanges by method and status
//   - xnet_client_errors_total: failed exchanges by error type
//   - xnet_client_request_duration_seconds: total time by method
//   - xnet_client_ttfb_seconds: time to first byte
//   - xnet_client_connect_duration_seconds: connection setup by phase
//   - xnet_client_bytes_total: wire bytes by direction
//   - xnet_client_connections_reused_total, xnet_client_retries_total
//   - xnet_client_progress_events_total: observer callbacks by direction
type Collector struct {
	requests      *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	ttfb          prometheus.Histogram
	connect       *prometheus.HistogramVec
	bytes         *prometheus.CounterVec
	reused        prometheus.Counter
	retries       prometheus.Counter
	progress      *prometheus.CounterVec
	uploadBytes   prometheus.Counter
	downloadBytes prometheus.Counter
}

var _ client.Observer = (*Collector)(nil)

// NewCollector creates the metrics and registers them with reg. A nil reg
// leaves them unregistered, which is what tests that read values directly
// want.
func NewCollector(cfg Config, reg prometheus.Registerer) *Collector {
	if cfg.Namespace == "" {
		cfg.Namespace = "xnet"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "client"
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	}

	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help}
	}
	hopts := func(name, help string) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
			Buckets:   cfg.DurationBuckets,
		}
	}

	c := &Collector{
		requests: prometheus.NewCounterVec(opts("requests_total", "Completed request/response exchanges"),
			[]string{"method", "status"}),
		failures: prometheus.NewCounterVec(opts("errors_total", "Exchanges that ended with an error"),
			[]string{"type"}),
		duration: prometheus.NewHistogramVec(hopts("request_duration_seconds", "Total exchange time in seconds"),
			[]string{"method"}),
		ttfb:     prometheus.NewHistogram(hopts("ttfb_seconds", "Time to first response byte in seconds")),
		connect: prometheus.NewHistogramVec(hopts("connect_duration_seconds", "Connection setup time by phase in seconds"),
			[]string{"phase"}),
		bytes: prometheus.NewCounterVec(opts("bytes_total", "Bytes on the wire"),
			[]string{"direction"}),
		reused:  prometheus.NewCounter(opts("connections_reused_total", "Exchanges sent on a kept-alive connection")),
		retries: prometheus.NewCounter(opts("retries_total", "Exchanges retried on a fresh connection")),
		progress: prometheus.NewCounterVec(opts("progress_events_total", "Upload and download progress notifications"),
			[]string{"direction"}),
	}
	c.uploadBytes = c.bytes.WithLabelValues("sent")
	c.downloadBytes = c.bytes.WithLabelValues("received")

	if reg != nil {
		reg.MustRegister(
			c.requests,
			c.failures,
			c.duration,
			c.ttfb,
			c.connect,
			c.bytes,
			c.reused,
			c.retries,
			c.progress,
		)
	}
	return c
}

func (c *Collector) OnUpload(client.Progress) {
	c.progress.WithLabelValues("upload").Inc()
}

func (c *Collector) OnDownload(client.Progress) {
	c.progress.WithLabelValues("download").Inc()
}

// OnComplete records one finished exchange.
func (c *Collector) OnComplete(e client.Completion) {
	status := "none"
	if e.StatusCode > 0 {
		status = strconv.Itoa(e.StatusCode)
	}
	c.requests.WithLabelValues(e.Method, status).Inc()

	if e.Err != nil {
		typ := string(errors.GetErrorType(e.Err))
		if typ == "" {
			typ = "unknown"
		}
		c.failures.WithLabelValues(typ).Inc()
	}

	t := e.Timings
	c.duration.WithLabelValues(e.Method).Observe(t.TotalTime.Seconds())
	if t.TTFB > 0 {
		c.ttfb.Observe(t.TTFB.Seconds())
	}
	for phase, d := range map[string]float64{
		"dns":   t.DNSLookup.Seconds(),
		"tcp":   t.TCPConnect.Seconds(),
		"proxy": t.ProxyHandshake.Seconds(),
		"tls":   t.TLSHandshake.Seconds(),
	} {
		if d > 0 {
			c.connect.WithLabelValues(phase).Observe(d)
		}
	}

	if e.BytesSent > 0 {
		c.uploadBytes.Add(float64(e.BytesSent))
	}
	if e.BytesReceived > 0 {
		c.downloadBytes.Add(float64(e.BytesReceived))
	}
	if e.Reused {
		c.reused.Inc()
	}
	if e.Retried {
		c.retries.Inc()
	}
}
