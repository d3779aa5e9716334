package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Collector records service metrics and mirrors them to the debug log.
type Collector struct {
	prometheus *PrometheusMetrics
	logger     *zap.Logger
}

// NewCollector registers on the default Prometheus registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry registers on registerer; tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewCollectorWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		prometheus: NewPrometheusMetricsWithRegistry(namespace, registerer, logger),
		logger:     logger,
	}
}

func (c *Collector) RecordRequest(endpoint string, statusCode int, duration time.Duration) {
	c.prometheus.RecordRequest(endpoint, statusCode, duration)

	c.logger.Debug("Recorded request metric",
		zap.String("endpoint", endpoint),
		zap.Int("status", statusCode),
		zap.Duration("duration", duration))
}

func (c *Collector) RecordScan(score float64, block bool) {
	c.prometheus.RecordScan(score, block)
}

// RecordHostsOperation counts an add, remove or list by its result
// (added, exists, removed, absent, ok, error).
func (c *Collector) RecordHostsOperation(op, result string) {
	c.prometheus.RecordHostsOperation(op, result)

	c.logger.Debug("Recorded hosts operation metric",
		zap.String("op", op),
		zap.String("result", result))
}

func (c *Collector) SetManagedEntries(n int) {
	c.prometheus.SetManagedEntries(n)
}

func (c *Collector) RecordScanCacheHit() {
	c.prometheus.RecordScanCache(CacheHit)
}

func (c *Collector) RecordScanCacheMiss() {
	c.prometheus.RecordScanCache(CacheMiss)
}

func (c *Collector) RecordScanCacheError() {
	c.prometheus.RecordScanCache(CacheError)
}

// ServeHTTP implements metricsserver.MetricsHandler.
func (c *Collector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	c.prometheus.ServeHTTP(ctx)
}
