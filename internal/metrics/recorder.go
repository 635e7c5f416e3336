// Package metrics exposes Prometheus collectors for evaluation runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run statuses used as the status label.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Recorder owns a private registry with the evaluation run collectors.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	SamplesBuilt     prometheus.Counter
	BacktestRetrains prometheus.Counter
	BacktestSteps    prometheus.Counter
	CacheLookups     *prometheus.CounterVec
}

// NewRecorder registers the collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tscv_runs_total",
				Help: "Total number of evaluation runs by kind and status",
			},
			[]string{"kind", "status"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tscv_run_duration_seconds",
				Help:    "Duration of evaluation runs in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),

		SamplesBuilt: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tscv_samples_built_total",
				Help: "Total number of (X, y) samples materialised",
			},
		),

		BacktestRetrains: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tscv_backtest_retrains_total",
				Help: "Total number of model refits during backtests",
			},
		),

		BacktestSteps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tscv_backtest_steps_total",
				Help: "Total number of walk-forward forecasts produced",
			},
		),

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tscv_result_cache_lookups_total",
				Help: "Result cache lookups by outcome",
			},
			[]string{"outcome"},
		),
	}

	r.registry.MustRegister(
		r.RunsTotal,
		r.RunDuration,
		r.SamplesBuilt,
		r.BacktestRetrains,
		r.BacktestSteps,
		r.CacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveRun records one finished run.
func (r *Recorder) ObserveRun(kind string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	r.RunsTotal.WithLabelValues(kind, status).Inc()
	r.RunDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// AddSamples counts materialised samples.
func (r *Recorder) AddSamples(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.SamplesBuilt.Add(float64(n))
}

// ObserveBacktest counts the steps and refits of one backtest.
func (r *Recorder) ObserveBacktest(steps, retrains int) {
	if r == nil {
		return
	}
	r.BacktestSteps.Add(float64(steps))
	r.BacktestRetrains.Add(float64(retrains))
}

// ObserveCacheLookup counts a result cache hit or miss.
func (r *Recorder) ObserveCacheLookup(hit bool) {
	if r == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.CacheLookups.WithLabelValues(outcome).Inc()
}
