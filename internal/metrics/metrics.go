package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notion_cleanup"

// Record outcomes, used as the value of the "outcome" label.
const (
	Matched  = "matched"
	Archived = "archived"
	Failed   = "failed"
	Skipped  = "skipped"
)

type Metrics struct {
	registry       *prometheus.Registry
	records        *prometheus.CounterVec
	databaseErrors *prometheus.CounterVec
	requests       *prometheus.HistogramVec
	lastRun        prometheus.Gauge
	lastRunSuccess prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records seen by the cleanup, by database and outcome.",
		}, []string{"database", "outcome"}),
		databaseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_errors_total",
			Help:      "Databases that could not be fully processed.",
		}, []string{"database"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Duration of API requests, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the end of the last run.",
		}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run completed without database errors, 0 otherwise.",
		}),
	}

	m.registry.MustRegister(m.records, m.databaseErrors, m.requests, m.lastRun, m.lastRunSuccess)

	return m
}

// NoMetrics returns an instance whose methods do nothing.
func NoMetrics() *Metrics {
	return &Metrics{}
}

func (x *Metrics) enabled() bool {
	return x != nil && x.registry != nil
}

// Record starts timing an API request; call the returned function when it
// completes.
func (x *Metrics) Record(operation string) func() {
	if !x.enabled() {
		return func() {}
	}

	timer := prometheus.NewTimer(x.requests.WithLabelValues(operation))
	return func() { timer.ObserveDuration() }
}

func (x *Metrics) Increment(database, outcome string) {
	if x.enabled() {
		x.records.WithLabelValues(database, outcome).Inc()
	}
}

func (x *Metrics) DatabaseError(database string) {
	if x.enabled() {
		x.databaseErrors.WithLabelValues(database).Inc()
	}
}

func (x *Metrics) RunCompleted(at time.Time, ok bool) {
	if !x.enabled() {
		return
	}

	x.lastRun.Set(float64(at.Unix()))
	if ok {
		x.lastRunSuccess.Set(1)
	} else {
		x.lastRunSuccess.Set(0)
	}
}

// WriteTextfile writes all metrics to path in the text exposition format,
// for node_exporter's textfile collector.
func (x *Metrics) WriteTextfile(path string) error {
	if !x.enabled() {
		return nil
	}

	return prometheus.WriteToTextfile(path, x.registry)
}

func (x *Metrics) Handler() http.Handler {
	if !x.enabled() {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(x.registry, promhttp.HandlerOpts{})
}
