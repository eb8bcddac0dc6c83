// Package metrics defines the Prometheus metrics exported by the service.
package metrics

import (
	"context"
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/trace"
)

// BusinessMetrics tracks analysis outcomes
type BusinessMetrics struct {
	AnalysesTotal          *prometheus.CounterVec
	AnalysisDuration       *prometheus.HistogramVec
	ChurnRiskScore         prometheus.Histogram
	UrgentIssuesTotal      *prometheus.CounterVec
	ResponsesAnalyzedTotal prometheus.Counter
	EnrichmentsTotal       *prometheus.CounterVec
}

// NewBusinessMetrics registers business metrics under namespace. A nil
// registerer uses the Prometheus default.
func NewBusinessMetrics(namespace string, reg prometheus.Registerer) *BusinessMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &BusinessMetrics{
		AnalysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of survey analyses by status",
		}, []string{"status"}),
		AnalysisDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Duration of survey analyses in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		ChurnRiskScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "churn_risk_score",
			Help:      "Distribution of per-response churn risk scores",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		UrgentIssuesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "urgent_issues_total",
			Help:      "Total number of urgent issues flagged by severity",
		}, []string{"severity"}),
		ResponsesAnalyzedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_analyzed_total",
			Help:      "Total number of survey responses analyzed",
		}),
		EnrichmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichments_total",
			Help:      "Total number of LLM enrichments by status",
		}, []string{"status"}),
	}
}

// ObserveDurationWithExemplar records a duration and links it to the trace
// in ctx when one is sampled
func (m *BusinessMetrics) ObserveDurationWithExemplar(ctx context.Context, hist *prometheus.HistogramVec, seconds float64, labels ...string) {
	observer := hist.WithLabelValues(labels...)

	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() && sc.IsSampled() {
		if eo, ok := observer.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(seconds, prometheus.Labels{"trace_id": sc.TraceID().String()})
			return
		}
	}
	observer.Observe(seconds)
}

// DatabaseMetrics exposes connection pool statistics
type DatabaseMetrics struct {
	OpenConnections prometheus.Gauge
	InUse           prometheus.Gauge
	Idle            prometheus.Gauge
	WaitCount       prometheus.Gauge
	WaitDuration    prometheus.Gauge
}

// NewDatabaseMetrics registers database pool gauges under namespace
func NewDatabaseMetrics(namespace string, reg prometheus.Registerer) *DatabaseMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      name,
			Help:      help,
		})
	}

	return &DatabaseMetrics{
		OpenConnections: gauge("open_connections", "Number of established connections"),
		InUse:           gauge("in_use_connections", "Number of connections currently in use"),
		Idle:            gauge("idle_connections", "Number of idle connections"),
		WaitCount:       gauge("wait_count", "Total number of connections waited for"),
		WaitDuration:    gauge("wait_duration_seconds", "Total time blocked waiting for a connection"),
	}
}

// UpdateDBStats copies the pool statistics of db into the gauges
func (m *DatabaseMetrics) UpdateDBStats(db *sql.DB) {
	stats := db.Stats()
	m.OpenConnections.Set(float64(stats.OpenConnections))
	m.InUse.Set(float64(stats.InUse))
	m.Idle.Set(float64(stats.Idle))
	m.WaitCount.Set(float64(stats.WaitCount))
	m.WaitDuration.Set(stats.WaitDuration.Seconds())
}
