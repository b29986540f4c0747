package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docgate"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stepDuration     *prom.HistogramVec
	runDuration      prom.Histogram
	stepResults      *prom.CounterVec
	runOutcomes      *prom.CounterVec
	failureCategory  *prom.CounterVec
	superseded       prom.Counter
	triggerDecisions *prom.CounterVec
	cacheResults     *prom.CounterVec
	queueDepth       prom.Gauge
	runningRuns      prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stepDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of individual check steps",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"step"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total check run duration",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		}),
		stepResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "step_results_total",
			Help:      "Step result counts by outcome",
		}, []string{"step", "result"}),
		runOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Check run outcomes by final status",
		}, []string{"outcome"}),
		failureCategory: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Failed check runs by failure category",
		}, []string{"category"}),
		superseded: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "runs_superseded_total",
			Help:      "Runs canceled because a newer run took over their concurrency group",
		}),
		triggerDecisions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_decisions_total",
			Help:      "Trigger rule evaluations by decision",
		}, []string{"decision"}),
		cacheResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Dependency cache operations by result",
		}, []string{"operation", "result"}),
		queueDepth: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Runs waiting in the queue",
		}),
		runningRuns: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "running_runs",
			Help:      "Runs currently executing",
		}),
	}
	reg.MustRegister(pr.stepDuration, pr.runDuration, pr.stepResults, pr.runOutcomes, pr.failureCategory,
		pr.superseded, pr.triggerDecisions, pr.cacheResults, pr.queueDepth, pr.runningRuns)
	return pr
}

func (p *PrometheusRecorder) ObserveStepDuration(step string, d time.Duration) {
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStepResult(step string, result ResultLabel) {
	p.stepResults.WithLabelValues(step, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	p.runOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncRunFailureCategory(category string) {
	p.failureCategory.WithLabelValues(category).Inc()
}

func (p *PrometheusRecorder) IncSuperseded() {
	p.superseded.Inc()
}

func (p *PrometheusRecorder) IncTriggerDecision(run bool) {
	decision := "skip"
	if run {
		decision = "run"
	}
	p.triggerDecisions.WithLabelValues(decision).Inc()
}

func (p *PrometheusRecorder) IncCacheResult(operation, result string) {
	p.cacheResults.WithLabelValues(operation, result).Inc()
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	p.queueDepth.Set(float64(n))
}

func (p *PrometheusRecorder) SetRunningRuns(n int) {
	p.runningRuns.Set(float64(n))
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
