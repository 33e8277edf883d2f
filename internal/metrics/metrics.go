// Package metrics counts pipeline outcomes with Prometheus and exports them as a textfile
// for the node_exporter textfile collector at the end of each run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "newsingest"

// Result labels.
const (
	ResultResolved  = "resolved"
	ResultFailed    = "failed"
	ResultInserted  = "inserted"
	ResultDuplicate = "duplicate"
	ResultDone      = "done"
	ResultPending   = "pending"
	ResultOK        = "ok"
	ResultRejected  = "rejected"
)

// Metrics holds the pipeline collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Sources     *prometheus.CounterVec
	Articles    *prometheus.CounterVec
	AICalls     *prometheus.CounterVec
	AICost      prometheus.Counter
	RunDuration *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Sources: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_total",
			Help:      "Sources processed, by result",
		}, []string{"result"}),
		Articles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_total",
			Help:      "Articles seen, by result",
		}, []string{"result"}),
		AICalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_calls_total",
			Help:      "Model calls, by job and result",
		}, []string{"job", "result"}),
		AICost: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_cost_total",
			Help:      "Accumulated model cost in configured price units",
		}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline jobs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"job"}),
	}
}

// Registry exposes the gatherer, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Source counts one source outcome.
func (m *Metrics) Source(result string) {
	if m != nil {
		m.Sources.WithLabelValues(result).Inc()
	}
}

// Article counts one article outcome.
func (m *Metrics) Article(result string) {
	if m != nil {
		m.Articles.WithLabelValues(result).Inc()
	}
}

// AICall implements enrich.Recorder.
func (m *Metrics) AICall(job string, ok bool, cost float64) {
	if m == nil {
		return
	}
	result := ResultOK
	if !ok {
		result = ResultRejected
	}
	m.AICalls.WithLabelValues(job, result).Inc()
	if cost > 0 {
		m.AICost.Add(cost)
	}
}

// Observe records how long job took.
func (m *Metrics) Observe(job string, d time.Duration) {
	if m != nil {
		m.RunDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

// WriteTextfile writes every collector to path atomically; an empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
