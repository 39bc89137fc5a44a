// Package observability provides the Prometheus metrics collector and
// OpenTelemetry tracing setup, plus traced decorators for the stores.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds the service's Prometheus metrics on a private
// registry so parallel test processes never trip duplicate
// registration.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Audit metrics
	AuditsTotal     *prometheus.CounterVec
	AuditDuration   prometheus.Histogram
	AuditViolations *prometheus.CounterVec
	GraphNodes      prometheus.Histogram

	// Consensus metrics
	RoundsOpened     prometheus.Counter
	CommitsTotal     prometheus.Counter
	RevealsTotal     prometheus.Counter
	RoundsSettled    *prometheus.CounterVec
	VerifiersFlagged *prometheus.CounterVec

	// Store metrics
	DBOperations *prometheus.CounterVec
	DBDuration   *prometheus.HistogramVec

	// Event metrics
	EventsPublished *prometheus.CounterVec
}

// NewCollector creates the metrics collector for the given namespace.
// The collector is a process-wide singleton; repeated calls return the
// first instance.
func NewCollector(namespace string) *Collector {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuditsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audits_total",
				Help:      "Total number of completed audits by verdict",
			},
			[]string{"verdict"},
		),
		AuditDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "audit_duration_seconds",
				Help:      "End to end audit duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		AuditViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_violations_total",
				Help:      "Total number of audit violations by stage",
			},
			[]string{"stage"},
		),
		GraphNodes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "audit_graph_nodes",
				Help:      "Verified node count per audited graph",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		RoundsOpened: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rounds_opened_total",
				Help:      "Total number of consensus rounds opened",
			},
		),
		CommitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commits_total",
				Help:      "Total number of accepted score commitments",
			},
		),
		RevealsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reveals_total",
				Help:      "Total number of accepted score reveals",
			},
		),
		RoundsSettled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rounds_settled_total",
				Help:      "Total number of settled rounds by outcome",
			},
			[]string{"outcome"},
		),
		VerifiersFlagged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verifiers_flagged_total",
				Help:      "Total number of verifiers flagged by reason",
			},
			[]string{"reason"},
		),
		DBOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_operations_total",
				Help:      "Total number of store operations",
			},
			[]string{"operation", "table", "status"},
		),
		DBDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_operation_duration_seconds",
				Help:      "Store operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of domain events published",
			},
			[]string{"type", "status"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.AuditsTotal,
		c.AuditDuration,
		c.AuditViolations,
		c.GraphNodes,
		c.RoundsOpened,
		c.CommitsTotal,
		c.RevealsTotal,
		c.RoundsSettled,
		c.VerifiersFlagged,
		c.DBOperations,
		c.DBDuration,
		c.EventsPublished,
	)

	globalCollector = c
	return c
}

// ResetForTesting clears the singleton so tests can build fresh
// collectors.
func ResetForTesting() {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()
	globalCollector = nil
}

// ObserveAudit records one finished audit.
func (c *Collector) ObserveAudit(verdict string, violations map[string]int, nodes int, duration time.Duration) {
	c.AuditsTotal.WithLabelValues(verdict).Inc()
	c.AuditDuration.Observe(duration.Seconds())
	c.GraphNodes.Observe(float64(nodes))
	for stage, count := range violations {
		c.AuditViolations.WithLabelValues(stage).Add(float64(count))
	}
}

// ObserveSettlement records one settled round.
func (c *Collector) ObserveSettlement(unscored bool, outliers, nonRevealers int) {
	outcome := "scored"
	if unscored {
		outcome = "unscored"
	}
	c.RoundsSettled.WithLabelValues(outcome).Inc()
	c.VerifiersFlagged.WithLabelValues("outlier").Add(float64(outliers))
	c.VerifiersFlagged.WithLabelValues("no_reveal").Add(float64(nonRevealers))
}

// ObserveDB records one store operation.
func (c *Collector) ObserveDB(operation, table, status string, duration time.Duration) {
	c.DBOperations.WithLabelValues(operation, table, status).Inc()
	c.DBDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// ObserveHTTP records one handled request.
func (c *Collector) ObserveHTTP(method, route, status string, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveEvent records one published event.
func (c *Collector) ObserveEvent(eventType, status string) {
	c.EventsPublished.WithLabelValues(eventType, status).Inc()
}

// Registry exposes the private registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
