package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	pr := NewPrometheusRecorder(prom.NewRegistry())

	pr.IncTaskOutcome("completed")
	pr.IncTaskOutcome("completed")
	pr.IncTaskOutcome("failed")
	pr.IncStageResult("generating", ResultSuccess)
	pr.IncRetry("push")
	pr.IncNotification(true)
	pr.IncNotification(false)
	pr.SetTasksInFlight(3)
	pr.ObserveStageDuration("generating", 2*time.Second)
	pr.ObserveTaskDuration(10 * time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(pr.taskOutcomes.WithLabelValues("completed")))
	require.Equal(t, 1.0, testutil.ToFloat64(pr.taskOutcomes.WithLabelValues("failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(pr.stageResults.WithLabelValues("generating", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(pr.retries.WithLabelValues("push")))
	require.Equal(t, 1.0, testutil.ToFloat64(pr.notifications.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(pr.notifications.WithLabelValues("failure")))
	require.Equal(t, 3.0, testutil.ToFloat64(pr.tasksInFlight))
}

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStageDuration("generating", time.Second)
	r.ObserveTaskDuration(time.Second)
	r.IncStageResult("generating", ResultFailure)
	r.IncTaskOutcome("failed")
	r.IncRetry("push")
	r.IncNotification(true)
	r.SetTasksInFlight(1)
}

func TestRegistryHandlerServesMetrics(t *testing.T) {
	pr := NewPrometheusRecorder(prom.NewRegistry())
	pr.IncTaskOutcome("completed")
	require.NotNil(t, pr.Handler())
	require.NotNil(t, pr.Registry())
	count, err := testutil.GatherAndCount(pr.Registry(), "pagesmith_task_outcomes_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
