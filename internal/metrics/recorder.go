// Package metrics defines observability hooks for the task pipeline.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics can be enabled by swapping the implementation
// without touching call sites.
package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailure  ResultLabel = "failure"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines the pipeline's observability hooks. Implementations may
// forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveTaskDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncTaskOutcome(outcome string) // outcome: completed|failed
	IncRetry(op string)
	IncNotification(success bool)
	SetTasksInFlight(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveTaskDuration(time.Duration)          {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncTaskOutcome(string)                      {}
func (NoopRecorder) IncRetry(string)                            {}
func (NoopRecorder) IncNotification(bool)                       {}
func (NoopRecorder) SetTasksInFlight(int)                       {}
