package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handler struct {
	registry *prometheus.Registry
	factory  promauto.Factory

	RequestsReceived        *prometheus.CounterVec
	EventsCapturedTotal     *prometheus.CounterVec
	EventsEvictedTotal      prometheus.Counter
	IngestRejectedTotal     *prometheus.CounterVec
	ReportsBuiltTotal       *prometheus.CounterVec
	ReportTokens            *prometheus.HistogramVec
	ContextExtractionsTotal *prometheus.CounterVec
	ContextLatency          *prometheus.HistogramVec
	RedactionsTotal         *prometheus.CounterVec
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderLatency         *prometheus.HistogramVec
	SessionsActive          prometheus.Gauge
	HandlerLatency          *prometheus.HistogramVec
	GRPCRequestsTotal       *prometheus.CounterVec
}

type Options struct {
	// Additional labels necessary
}

// New builds a handler backed by its own registry so that several handlers
// can coexist in one process.
func New(name string) (*Handler, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	constLabels := prometheus.Labels{"app": name}

	return &Handler{
		registry: registry,
		factory:  factory,
		RequestsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_received",
			ConstLabels: constLabels,
			Help:        "The total number of http requests received",
		}, []string{"status"}),
		EventsCapturedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "capture_events_total",
			ConstLabels: constLabels,
			Help:        "The total number of console events appended to capture buffers",
		}, []string{"source"}),
		EventsEvictedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "capture_events_evicted_total",
			ConstLabels: constLabels,
			Help:        "The total number of console events evicted by buffer overflow",
		}),
		IngestRejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "ingest_rejected_total",
			ConstLabels: constLabels,
			Help:        "The total number of ingest requests rejected",
		}, []string{"reason"}),
		ReportsBuiltTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "reports_built_total",
			ConstLabels: constLabels,
			Help:        "The total number of log reports built",
		}, []string{"format", "preset"}),
		ReportTokens: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "report_estimated_tokens",
			ConstLabels: constLabels,
			Help:        "Estimated token size of built artifacts",
			Buckets:     prometheus.ExponentialBuckets(64, 2, 10),
		}, []string{"kind"}),
		ContextExtractionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "context_extractions_total",
			ConstLabels: constLabels,
			Help:        "The total number of page context extractions",
		}, []string{"strategy"}),
		ContextLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "context_extraction_latency_seconds",
			ConstLabels: constLabels,
			Help:        "The latency of page context extraction",
			Buckets:     prometheus.DefBuckets,
		}, []string{"strategy"}),
		RedactionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "redactions_total",
			ConstLabels: constLabels,
			Help:        "The total number of credential redactions applied",
		}, []string{"rule"}),
		ProviderRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "provider_requests_total",
			ConstLabels: constLabels,
			Help:        "The total number of LLM provider calls",
		}, []string{"provider", "status"}),
		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "provider_latency_seconds",
			ConstLabels: constLabels,
			Help:        "The latency of LLM provider calls",
			Buckets:     prometheus.DefBuckets,
		}, []string{"provider", "success"}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "sessions_active",
			ConstLabels: constLabels,
			Help:        "The number of live capture sessions",
		}),
		HandlerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "handler_latency_seconds",
			ConstLabels: constLabels,
			Help:        "The latency of API handlers",
			Buckets:     prometheus.DefBuckets,
		}, []string{"route", "success"}),
		GRPCRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "grpc_requests_total",
			ConstLabels: constLabels,
			Help:        "The total number of gRPC requests",
		}, []string{"method", "status"}),
	}, nil
}

// HTTPHandler serves this handler's registry in the Prometheus text format
func (h *Handler) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{Registry: h.registry})
}

// Registry exposes the underlying registry, mainly for tests
func (h *Handler) Registry() *prometheus.Registry {
	return h.registry
}

// IncRequestsReceived increments the http requests counter
func (h *Handler) IncRequestsReceived(status string) {
	h.RequestsReceived.WithLabelValues(status).Inc()
}

// AddEventsCaptured adds n captured events for a source
func (h *Handler) AddEventsCaptured(source string, n int) {
	h.EventsCapturedTotal.WithLabelValues(source).Add(float64(n))
}

// AddEventsEvicted adds n evicted events
func (h *Handler) AddEventsEvicted(n int) {
	h.EventsEvictedTotal.Add(float64(n))
}

// IncIngestRejectedTotal increments the ingest rejected counter
func (h *Handler) IncIngestRejectedTotal(reason string) {
	h.IngestRejectedTotal.WithLabelValues(reason).Inc()
}

// IncReportsBuilt increments the report counter
func (h *Handler) IncReportsBuilt(format, preset string) {
	h.ReportsBuiltTotal.WithLabelValues(format, preset).Inc()
}

// ObserveTokens records the estimated token size of a report, context or prompt
func (h *Handler) ObserveTokens(kind string, tokens int) {
	h.ReportTokens.WithLabelValues(kind).Observe(float64(tokens))
}

// ObserveContextExtraction records one page context extraction
func (h *Handler) ObserveContextExtraction(strategy string, duration time.Duration) {
	h.ContextExtractionsTotal.WithLabelValues(strategy).Inc()
	h.ContextLatency.WithLabelValues(strategy).Observe(duration.Seconds())
}

// IncRedactionsTotal increments the redaction counter for a rule
func (h *Handler) IncRedactionsTotal(rule string) {
	h.RedactionsTotal.WithLabelValues(rule).Inc()
}

// ObserveProviderCall records the outcome and latency of a provider request
func (h *Handler) ObserveProviderCall(provider string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	h.ProviderRequestsTotal.WithLabelValues(provider, status).Inc()
	h.ProviderLatency.WithLabelValues(provider, boolLabel(success)).Observe(duration.Seconds())
}

// ObserveHandlerLatency records the latency of API handlers
func (h *Handler) ObserveHandlerLatency(duration time.Duration, route string, success bool) {
	h.HandlerLatency.WithLabelValues(route, boolLabel(success)).Observe(duration.Seconds())
}

// SetSessionsActive records the number of live sessions
func (h *Handler) SetSessionsActive(n int) {
	h.SessionsActive.Set(float64(n))
}

// IncGRPCRequests increments the gRPC request counter
func (h *Handler) IncGRPCRequests(method, status string) {
	h.GRPCRequestsTotal.WithLabelValues(method, status).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Counter represents a Prometheus counter
type Counter struct {
	*prometheus.CounterVec
}

// Histogram represents a Prometheus histogram
type Histogram struct {
	*prometheus.HistogramVec
}

// Gauge represents a Prometheus gauge
type Gauge struct {
	*prometheus.GaugeVec
}

// NewCounter creates a new counter metric on this handler's registry
func (h *Handler) NewCounter(name, help string, labels ...string) *Counter {
	return &Counter{h.factory.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, labels)}
}

// NewHistogram creates a new histogram metric on this handler's registry
func (h *Handler) NewHistogram(name, help string, labels ...string) *Histogram {
	return &Histogram{h.factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: prometheus.DefBuckets,
	}, labels)}
}

// NewGauge creates a new gauge metric on this handler's registry
func (h *Handler) NewGauge(name, help string, labels ...string) *Gauge {
	return &Gauge{h.factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, labels)}
}

// Inc increments the counter for the given label values
func (c *Counter) Inc(labelValues ...string) {
	c.CounterVec.WithLabelValues(labelValues...).Inc()
}

// Add adds the given value to the counter
func (c *Counter) Add(delta float64, labelValues ...string) {
	c.CounterVec.WithLabelValues(labelValues...).Add(delta)
}

// Observe adds a single observation to the histogram
func (h *Histogram) Observe(value float64, labelValues ...string) {
	h.HistogramVec.WithLabelValues(labelValues...).Observe(value)
}

// Set sets the gauge value
func (g *Gauge) Set(value float64, labelValues ...string) {
	g.GaugeVec.WithLabelValues(labelValues...).Set(value)
}

// Inc increments the gauge
func (g *Gauge) Inc(labelValues ...string) {
	g.GaugeVec.WithLabelValues(labelValues...).Inc()
}

// Dec decrements the gauge
func (g *Gauge) Dec(labelValues ...string) {
	g.GaugeVec.WithLabelValues(labelValues...).Dec()
}
