package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

const subsystem = "siteguard"

// Scan cache outcomes
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// PrometheusMetrics owns the Prometheus collectors of the service.
type PrometheusMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	scansTotal *prometheus.CounterVec
	riskScore  prometheus.Histogram

	hostsOperations *prometheus.CounterVec
	managedEntries  prometheus.Gauge

	scanCacheTotal    *prometheus.CounterVec
	scanCacheHitRatio prometheus.Gauge

	logger      *zap.Logger
	httpHandler fasthttp.RequestHandler
}

// NewPrometheusMetricsWithRegistry registers every collector on registerer.
// When registerer is also a Gatherer it backs the /metrics handler.
func NewPrometheusMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *PrometheusMetrics {
	pm := &PrometheusMetrics{logger: logger}

	pm.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by endpoint and status range",
		},
		[]string{"endpoint", "status"},
	)

	pm.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Time taken to handle HTTP requests",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"endpoint"},
	)

	pm.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scans_total",
			Help:      "Total number of URL assessments by verdict",
		},
		[]string{"verdict"}, // block, safe
	)

	pm.riskScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "risk_score",
			Help:      "Distribution of assessed risk scores",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)

	pm.hostsOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hosts_operations_total",
			Help:      "Hosts file operations by kind and outcome",
		},
		[]string{"op", "result"},
	)

	pm.managedEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "managed_entries",
			Help:      "Number of entries in the managed block",
		},
	)

	pm.scanCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scan_cache_total",
			Help:      "Scan cache lookups by result",
		},
		[]string{"result"},
	)

	pm.scanCacheHitRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scan_cache_hit_ratio",
			Help:      "Scan cache hit ratio (0-1)",
		},
	)

	registerer.MustRegister(
		pm.requestsTotal,
		pm.requestDuration,
		pm.scansTotal,
		pm.riskScore,
		pm.hostsOperations,
		pm.managedEntries,
		pm.scanCacheTotal,
		pm.scanCacheHitRatio,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return pm
}

func (pm *PrometheusMetrics) RecordRequest(endpoint string, statusCode int, duration time.Duration) {
	pm.requestsTotal.WithLabelValues(endpoint, statusRange(statusCode)).Inc()
	pm.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (pm *PrometheusMetrics) RecordScan(score float64, block bool) {
	verdict := "safe"
	if block {
		verdict = "block"
	}
	pm.scansTotal.WithLabelValues(verdict).Inc()
	pm.riskScore.Observe(score)
}

func (pm *PrometheusMetrics) RecordHostsOperation(op, result string) {
	pm.hostsOperations.WithLabelValues(op, result).Inc()
}

func (pm *PrometheusMetrics) SetManagedEntries(n int) {
	pm.managedEntries.Set(float64(n))
}

// RecordScanCache counts a lookup and refreshes the hit ratio. Errors count
// toward neither hits nor misses.
func (pm *PrometheusMetrics) RecordScanCache(result string) {
	pm.scanCacheTotal.WithLabelValues(result).Inc()

	hits := pm.counterValue(pm.scanCacheTotal.WithLabelValues(CacheHit))
	misses := pm.counterValue(pm.scanCacheTotal.WithLabelValues(CacheMiss))
	if total := hits + misses; total > 0 {
		pm.scanCacheHitRatio.Set(hits / total)
	}
}

// ServeHTTP exposes the registry in the Prometheus text format.
func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}

func (pm *PrometheusMetrics) counterValue(counter prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		pm.logger.Warn("Failed to read counter value", zap.Error(err))
		return 0
	}
	return metric.GetCounter().GetValue()
}

// statusRange maps a status code to 2xx, 3xx, 4xx, 5xx or unknown.
func statusRange(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500 && statusCode < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
