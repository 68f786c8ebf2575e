// Package metrics keeps the process-wide request counters reported by the
// /metrics endpoints. A Registry is created once at startup and passed to
// whatever needs it; there is no package-level state.
package metrics

import (
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
)

// Registry holds monotonic counters for the lifetime of the process. All
// methods are safe for concurrent use; the Record and Observe methods are
// also no-ops on a nil receiver.
type Registry struct {
	start time.Time
	now   func() time.Time

	requests     atomic.Int64
	errors       atomic.Int64
	healthChecks atomic.Int64
	apiCalls     atomic.Int64

	proc     *process.Process
	duration *prometheus.HistogramVec
	prom     *prometheus.Registry

	descRequests     *prometheus.Desc
	descErrors       *prometheus.Desc
	descHealthChecks *prometheus.Desc
	descAPICalls     *prometheus.Desc
	descUptime       *prometheus.Desc
}

// New creates a Registry whose start time is now.
func New(service string) *Registry {
	return newRegistry(service, time.Now)
}

func newRegistry(service string, now func() time.Time) *Registry {
	ns := namespace(service)
	r := &Registry{
		start: now(),
		now:   now,
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"method", "path", "status"},
		),
		prom:             prometheus.NewRegistry(),
		descRequests:     prometheus.NewDesc(ns+"_requests_total", "Total number of HTTP requests received.", nil, nil),
		descErrors:       prometheus.NewDesc(ns+"_errors_total", "Total number of requests answered with status >= 400.", nil, nil),
		descHealthChecks: prometheus.NewDesc(ns+"_health_checks_total", "Total number of liveness and readiness checks.", nil, nil),
		descAPICalls:     prometheus.NewDesc(ns+"_api_calls_total", "Total number of item API calls.", nil, nil),
		descUptime:       prometheus.NewDesc(ns+"_uptime_seconds", "Seconds since the process started.", nil, nil),
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		r.proc = p
	}

	r.prom.MustRegister(
		r,
		r.duration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return r
}

// RecordRequest counts one inbound request, whatever its outcome.
func (r *Registry) RecordRequest() {
	if r == nil {
		return
	}
	r.requests.Add(1)
}

// RecordError counts one request that ended in an error response.
func (r *Registry) RecordError() {
	if r == nil {
		return
	}
	r.errors.Add(1)
}

// RecordHealthCheck counts one liveness or readiness probe.
func (r *Registry) RecordHealthCheck() {
	if r == nil {
		return
	}
	r.healthChecks.Add(1)
}

// RecordAPICall counts one call to the item API.
func (r *Registry) RecordAPICall() {
	if r == nil {
		return
	}
	r.apiCalls.Add(1)
}

// ObserveRequest records the latency of a finished request.
func (r *Registry) ObserveRequest(method, path string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.duration.WithLabelValues(strings.ToUpper(method), canonicalPath(path), strconv.Itoa(status)).Observe(d.Seconds())
}

// StartTime is when the registry was created.
func (r *Registry) StartTime() time.Time {
	return r.start
}

// Handler serves the registry in the prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}

// Describe implements prometheus.Collector.
func (r *Registry) Describe(ch chan<- *prometheus.Desc) {
	ch <- r.descRequests
	ch <- r.descErrors
	ch <- r.descHealthChecks
	ch <- r.descAPICalls
	ch <- r.descUptime
}

// Collect implements prometheus.Collector.
func (r *Registry) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(r.descRequests, prometheus.CounterValue, float64(r.requests.Load()))
	ch <- prometheus.MustNewConstMetric(r.descErrors, prometheus.CounterValue, float64(r.errors.Load()))
	ch <- prometheus.MustNewConstMetric(r.descHealthChecks, prometheus.CounterValue, float64(r.healthChecks.Load()))
	ch <- prometheus.MustNewConstMetric(r.descAPICalls, prometheus.CounterValue, float64(r.apiCalls.Load()))
	ch <- prometheus.MustNewConstMetric(r.descUptime, prometheus.GaugeValue, r.uptime().Seconds())
}

func (r *Registry) uptime() time.Duration {
	return r.now().Sub(r.start)
}

// Snapshot is a point-in-time view of the registry.
type Snapshot struct {
	TotalRequests     int64     `json:"totalRequests"`
	TotalErrors       int64     `json:"totalErrors"`
	HealthChecks      int64     `json:"healthChecks"`
	APICalls          int64     `json:"apiCalls"`
	UptimeSeconds     float64   `json:"uptimeSeconds"`
	RequestsPerSecond float64   `json:"requestsPerSecond"`
	ErrorRate         float64   `json:"errorRate"`
	Memory            Memory    `json:"memoryUsage"`
	CPU               CPU       `json:"cpuUsage"`
	StartTime         time.Time `json:"startTime"`
}

// Memory usage in bytes.
type Memory struct {
	RSS       uint64 `json:"rss"`
	HeapAlloc uint64 `json:"heapUsed"`
	HeapSys   uint64 `json:"heapTotal"`
}

// CPU time consumed by the process, in seconds, and its recent utilisation.
type CPU struct {
	User    float64 `json:"user"`
	System  float64 `json:"system"`
	Percent float64 `json:"percent"`
}

// Snapshot reads every counter and derives the rates. Counters are read
// independently, so a snapshot taken under load may be off by in-flight
// requests between fields.
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		TotalRequests: r.requests.Load(),
		TotalErrors:   r.errors.Load(),
		HealthChecks:  r.healthChecks.Load(),
		APICalls:      r.apiCalls.Load(),
		UptimeSeconds: r.uptime().Seconds(),
		StartTime:     r.start,
	}
	s.RequestsPerSecond = rate(s.TotalRequests, s.UptimeSeconds)
	s.ErrorRate = errorRate(s.TotalErrors, s.TotalRequests)
	s.Memory, s.CPU = r.usage()
	return s
}

func rate(n int64, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(n) / seconds
}

func errorRate(errs, requests int64) float64 {
	if requests <= 0 {
		return 0
	}
	// errors and requests are loaded separately
	return min(100*float64(errs)/float64(requests), 100)
}

// usage samples process memory and CPU. Sampling failures leave the
// affected fields at zero.
func (r *Registry) usage() (Memory, CPU) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	mem := Memory{HeapAlloc: ms.HeapAlloc, HeapSys: ms.HeapSys}

	var cpu CPU
	if r.proc == nil {
		return mem, cpu
	}
	if info, err := r.proc.MemoryInfo(); err == nil {
		mem.RSS = info.RSS
	}
	if times, err := r.proc.Times(); err == nil {
		cpu.User = times.User
		cpu.System = times.System
	}
	if pct, err := r.proc.CPUPercent(); err == nil {
		cpu.Percent = pct
	}
	return mem, cpu
}

// namespace turns a service name into a prometheus metric prefix.
func namespace(service string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(service) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "itemsvc"
	}
	ns := b.String()
	if ns[0] >= '0' && ns[0] <= '9' {
		ns = "_" + ns
	}
	return ns
}

// canonicalPath folds item ids into a route template so label cardinality
// stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 3 && parts[0] == "api" && parts[1] == "items" && parts[2] != "bulk" {
		return "/api/items/:id"
	}
	switch "/" + trimmed {
	case "/health", "/ready", "/metrics", "/metrics/prometheus", "/api/items", "/api/items/bulk":
		return "/" + trimmed
	}
	return "other"
}
