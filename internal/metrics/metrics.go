// Package metrics exposes eqlproxy's Prometheus instrumentation:
// connection counts, query latency, and the rewrite/encryption
// failure counters the admin API's /metrics endpoint serves.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for eqlproxy.
type Collector struct {
	Registry *prometheus.Registry

	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	queryDuration     prometheus.Histogram

	rewriteFailures prometheus.Counter
	cryptorFailures prometheus.Counter
	errorsByKind    *prometheus.CounterVec

	schemaReloadsTotal  prometheus.Counter
	schemaReloadErrors  prometheus.Counter
	upstreamHealthy     prometheus.Gauge
}

// New creates and registers all Prometheus metrics using a dedicated
// registry — safe to call more than once (tests, config reload)
// without colliding with the default global registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eqlproxy_connections_active",
			Help: "Number of client connections currently proxied",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eqlproxy_connections_total",
			Help: "Total client connections accepted",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eqlproxy_query_duration_seconds",
			Help:    "Duration of a single statement round trip through the proxy",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
		rewriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eqlproxy_rewrite_failures_total",
			Help: "Statements rejected by the parser, resolver, or type inferencer",
		}),
		cryptorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eqlproxy_cryptor_failures_total",
			Help: "Encrypt/decrypt calls that failed",
		}),
		errorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eqlproxy_errors_total",
			Help: "ErrorResponses sent to clients, by fault kind",
		}, []string{"kind"}),
		schemaReloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eqlproxy_schema_reloads_total",
			Help: "Successful schema file reloads",
		}),
		schemaReloadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eqlproxy_schema_reload_errors_total",
			Help: "Schema file reloads that failed validation or parsing",
		}),
		upstreamHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eqlproxy_upstream_healthy",
			Help: "Whether the configured upstream server answered the last health probe (1=healthy, 0=unhealthy)",
		}),
	}

	reg.MustRegister(
		c.connectionsActive,
		c.connectionsTotal,
		c.queryDuration,
		c.rewriteFailures,
		c.cryptorFailures,
		c.errorsByKind,
		c.schemaReloadsTotal,
		c.schemaReloadErrors,
		c.upstreamHealthy,
	)

	return c
}

// ConnectionOpened records a new client connection.
func (c *Collector) ConnectionOpened() {
	c.connectionsActive.Inc()
	c.connectionsTotal.Inc()
}

// ConnectionClosed records a client connection ending.
func (c *Collector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// QueryDuration observes how long one statement round trip took.
func (c *Collector) QueryDuration(d time.Duration) {
	c.queryDuration.Observe(d.Seconds())
}

// RewriteFailure records a statement rejected before reaching the
// server.
func (c *Collector) RewriteFailure() {
	c.rewriteFailures.Inc()
}

// CryptorFailure records a failed Encrypt/Decrypt call.
func (c *Collector) CryptorFailure() {
	c.cryptorFailures.Inc()
}

// ErrorSent records an ErrorResponse sent to a client, labeled by its
// §7 fault kind.
func (c *Collector) ErrorSent(kind string) {
	c.errorsByKind.WithLabelValues(kind).Inc()
}

// SchemaReloaded records a successful or failed schema file reload.
func (c *Collector) SchemaReloaded(ok bool) {
	if ok {
		c.schemaReloadsTotal.Inc()
		return
	}
	c.schemaReloadErrors.Inc()
}

// SetUpstreamHealthy sets the upstream health gauge.
func (c *Collector) SetUpstreamHealthy(healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	c.upstreamHealthy.Set(val)
}
