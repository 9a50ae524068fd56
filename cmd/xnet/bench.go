package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/X-rus/xnet/pkg/client"
	"github.com/X-rus/xnet/pkg/config"
	"github.com/X-rus/xnet/pkg/metrics"
)

var benchFlags struct {
	requests    int
	concurrency int
	rate        float64
	method      string
	metricsOut  string
	requestOptions
}

var benchCmd = &cobra.Command{
	Use:   "bench [flags] URL",
	Short: "Load test a URL",
	Long: `Send a fixed number of requests from concurrent workers and report
throughput, latency percentiles and status codes.

Each worker owns one keep-alive session. --rate caps the total request rate
across workers; 0 means unlimited. --metrics-out writes the Prometheus
metrics gathered during the run in text format.

Examples:
  xnet bench -n 1000 -c 8 http://127.0.0.1:8080/
  xnet bench -n 200 -c 2 --rate 20 --proxy socks5://127.0.0.1:1080 https://example.com/`,
	Args: cobra.ExactArgs(1),
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	f := benchCmd.Flags()
	f.IntVarP(&benchFlags.requests, "requests", "n", 100, "total number of requests")
	f.IntVarP(&benchFlags.concurrency, "concurrency", "c", 1, "number of workers")
	f.Float64Var(&benchFlags.rate, "rate", 0, "maximum requests per second (0 = unlimited)")
	f.StringVarP(&benchFlags.method, "request", "X", "GET", "request method")
	f.StringVar(&benchFlags.metricsOut, "metrics-out", "", "write Prometheus metrics to this file")
	f.StringArrayVarP(&benchFlags.headers, "header", "H", nil, "extra header 'Name: value'")
	f.StringArrayVar(&benchFlags.proxies, "proxy", nil, "proxy URL (repeat to chain)")
	f.BoolVarP(&benchFlags.insecure, "insecure", "k", false, "accept any server certificate")
	f.DurationVar(&benchFlags.timeout, "timeout", 0, "per-request timeout")
}

// benchResult is one request outcome.
type benchResult struct {
	latency time.Duration
	status  int
	err     error
}

// benchReport aggregates results.
type benchReport struct {
	total     int
	succeeded int
	failed    int
	elapsed   time.Duration
	latencies []time.Duration
	statuses  map[int]int
	errors    map[string]int
}

func (r *benchReport) add(res benchResult) {
	r.total++
	r.latencies = append(r.latencies, res.latency)
	if res.status > 0 {
		r.statuses[res.status]++
	}
	if res.err != nil {
		r.failed++
		r.errors[res.err.Error()]++
		return
	}
	r.succeeded++
}

func (r *benchReport) percentile(p float64) time.Duration {
	if len(r.latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), r.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func (r *benchReport) print(out io.Writer) {
	fmt.Fprintf(out, "Requests:    %d (%d ok, %d failed)\n", r.total, r.succeeded, r.failed)
	fmt.Fprintf(out, "Elapsed:     %s\n", r.elapsed.Round(time.Millisecond))
	if r.elapsed > 0 {
		fmt.Fprintf(out, "Throughput:  %.1f req/s\n", float64(r.total)/r.elapsed.Seconds())
	}
	fmt.Fprintf(out, "Latency p50: %s  p95: %s  p99: %s  max: %s\n",
		r.percentile(0.50).Round(time.Microsecond),
		r.percentile(0.95).Round(time.Microsecond),
		r.percentile(0.99).Round(time.Microsecond),
		r.percentile(1).Round(time.Microsecond))

	codes := make([]int, 0, len(r.statuses))
	for code := range r.statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(out, "Status %d:  %d\n", code, r.statuses[code])
	}
	for msg, n := range r.errors {
		fmt.Fprintf(out, "Error (%d): %s\n", n, msg)
	}
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchFlags.requests <= 0 || benchFlags.concurrency <= 0 {
		return fmt.Errorf("--requests and --concurrency must be positive")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(metrics.Config{}, reg)

	report, err := bench(ctx, cfg, collector, args[0])
	if err != nil {
		return err
	}
	report.print(cmd.OutOrStdout())

	if benchFlags.metricsOut != "" {
		if err := prometheus.WriteToTextfile(benchFlags.metricsOut, reg); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}

// bench runs benchFlags.requests requests against address and collects the
// results. Request failures are reported, not returned.
func bench(ctx context.Context, cfg *config.Config, collector *metrics.Collector, address string) (*benchReport, error) {
	// Every worker gets its own Request and configuration copy, since a
	// Request is single-goroutine.
	workers := make([]*client.Request, 0, benchFlags.concurrency)
	for w := 0; w < benchFlags.concurrency; w++ {
		workerCfg := *cfg
		r, err := newRequest(&workerCfg, benchFlags.requestOptions)
		if err != nil {
			return nil, err
		}
		if _, _, err := prepareBody(r, benchFlags.requestOptions); err != nil {
			return nil, err
		}
		r.SetObserver(collector)
		workers = append(workers, r)
	}

	limit := rate.Inf
	if benchFlags.rate > 0 {
		limit = rate.Limit(benchFlags.rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	jobs := make(chan struct{})
	results := make(chan benchResult, benchFlags.concurrency)
	report := &benchReport{statuses: make(map[int]int), errors: make(map[string]int)}

	var collect sync.WaitGroup
	collect.Add(1)
	go func() {
		defer collect.Done()
		for res := range results {
			report.add(res)
		}
	}()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < benchFlags.requests; i++ {
			select {
			case jobs <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for _, r := range workers {
		g.Go(func() error {
			defer r.Close()
			for range jobs {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
				results <- benchOnce(gctx, r, address)
			}
			return nil
		})
	}

	err := g.Wait()
	close(results)
	collect.Wait()
	report.elapsed = time.Since(start)
	if err != nil && ctx.Err() == nil {
		return nil, err
	}
	return report, nil
}

func benchOnce(ctx context.Context, r *client.Request, address string) benchResult {
	if benchFlags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, benchFlags.timeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := r.Send(ctx, benchFlags.method, address, nil)
	res := benchResult{err: err}
	if resp != nil {
		res.status = resp.StatusCode
		if derr := resp.Discard(); derr != nil && res.err == nil {
			res.err = derr
		}
	}
	res.latency = time.Since(start)
	return res
}
