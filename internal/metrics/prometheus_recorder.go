package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry      *prom.Registry
	stageDuration *prom.HistogramVec
	taskDuration  prom.Histogram
	stageResults  *prom.CounterVec
	taskOutcomes  *prom.CounterVec
	retries       *prom.CounterVec
	notifications *prom.CounterVec
	tasksInFlight prom.Gauge
}

// NewPrometheusRecorder constructs and registers the pipeline metrics.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: "pagesmith",
		Name:      "stage_duration_seconds",
		Help:      "Duration of individual pipeline stages",
		Buckets:   prom.DefBuckets,
	}, []string{"stage"})
	pr.taskDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "pagesmith",
		Name:      "task_duration_seconds",
		Help:      "End to end task processing duration",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
	pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "pagesmith",
		Name:      "stage_results_total",
		Help:      "Stage result counts by outcome",
	}, []string{"stage", "result"})
	pr.taskOutcomes = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "pagesmith",
		Name:      "task_outcomes_total",
		Help:      "Terminal task outcomes",
	}, []string{"outcome"})
	pr.retries = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "pagesmith",
		Name:      "retries_total",
		Help:      "Retry attempts by operation",
	}, []string{"op"})
	pr.notifications = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "pagesmith",
		Name:      "notifications_total",
		Help:      "Completion callback delivery results",
	}, []string{"result"})
	pr.tasksInFlight = prom.NewGauge(prom.GaugeOpts{
		Namespace: "pagesmith",
		Name:      "tasks_in_flight",
		Help:      "Tasks currently being processed",
	})

	reg.MustRegister(
		pr.stageDuration,
		pr.taskDuration,
		pr.stageResults,
		pr.taskOutcomes,
		pr.retries,
		pr.notifications,
		pr.tasksInFlight,
	)
	return pr
}

// Registry exposes the backing registry for HTTP serving.
func (pr *PrometheusRecorder) Registry() *prom.Registry { return pr.registry }

// Handler returns an http.Handler serving this recorder's metrics.
func (pr *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(pr.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (pr *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	pr.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) ObserveTaskDuration(d time.Duration) {
	pr.taskDuration.Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	pr.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (pr *PrometheusRecorder) IncTaskOutcome(outcome string) {
	pr.taskOutcomes.WithLabelValues(outcome).Inc()
}

func (pr *PrometheusRecorder) IncRetry(op string) {
	pr.retries.WithLabelValues(op).Inc()
}

func (pr *PrometheusRecorder) IncNotification(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	pr.notifications.WithLabelValues(result).Inc()
}

func (pr *PrometheusRecorder) SetTasksInFlight(n int) {
	pr.tasksInFlight.Set(float64(n))
}
