package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterIncrement(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("requests_total", nil)
	r.IncrementCounter("requests_total", nil)
	r.AddToCounter("requests_total", 3, nil)

	assert.Equal(t, float64(5), r.CounterValue("requests_total", nil))
}

func TestCountersWithLabelsAreDistinct(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("deliveries_total", map[string]string{"status": "processed"})
	r.IncrementCounter("deliveries_total", map[string]string{"status": "processed"})
	r.IncrementCounter("deliveries_total", map[string]string{"status": "ignored"})

	assert.Equal(t, float64(2), r.CounterValue("deliveries_total", map[string]string{"status": "processed"}))
	assert.Equal(t, float64(1), r.CounterValue("deliveries_total", map[string]string{"status": "ignored"}))
	assert.Zero(t, r.CounterValue("deliveries_total", map[string]string{"status": "failed"}))
}

func TestMetricKeyLabelOrderIsStable(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("m", map[string]string{"a": "1", "b": "2"})
	r.IncrementCounter("m", map[string]string{"b": "2", "a": "1"})

	assert.Equal(t, float64(2), r.CounterValue("m", map[string]string{"a": "1", "b": "2"}))
}

func TestTimerAggregation(t *testing.T) {
	r := NewRegistry()

	r.RecordTimer("op_duration", 10*time.Millisecond, nil)
	r.RecordTimer("op_duration", 30*time.Millisecond, nil)

	snapshot := r.Snapshot()
	timers, ok := snapshot["timers"].([]*TimerSnapshot)
	require.True(t, ok)
	require.Len(t, timers, 1)

	timer := timers[0]
	assert.Equal(t, int64(2), timer.Count)
	assert.InDelta(t, 40.0, timer.SumMs, 0.01)
	assert.InDelta(t, 10.0, timer.MinMs, 0.01)
	assert.InDelta(t, 30.0, timer.MaxMs, 0.01)
	assert.InDelta(t, 20.0, timer.AvgMs, 0.01)
}

func TestSnapshotShape(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter("b_counter", nil)
	r.IncrementCounter("a_counter", nil)

	snapshot := r.Snapshot()
	assert.Contains(t, snapshot, "uptime_seconds")

	counters, ok := snapshot["counters"].([]*CounterSnapshot)
	require.True(t, ok)
	require.Len(t, counters, 2)
	assert.Equal(t, "a_counter", counters[0].Name, "counters sorted by name")
	assert.Equal(t, "b_counter", counters[1].Name)
}

func TestSnapshotReturnsCopies(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter("c", nil)

	snapshot := r.Snapshot()
	counters := snapshot["counters"].([]*CounterSnapshot)
	counters[0].Value = 999

	assert.Equal(t, float64(1), r.CounterValue("c", nil))
}

func TestGlobalRegistryHelpers(t *testing.T) {
	before := GetRegistry().CounterValue("global_test_counter", nil)

	IncrementCounter("global_test_counter", nil)
	AddToCounter("global_test_counter", 2, nil)

	assert.Equal(t, before+3, GetRegistry().CounterValue("global_test_counter", nil))
}

func TestConcurrentCounterUpdates(t *testing.T) {
	r := NewRegistry()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				r.IncrementCounter("concurrent", nil)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.Equal(t, float64(800), r.CounterValue("concurrent", nil))
}
