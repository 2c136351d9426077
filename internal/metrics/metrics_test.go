package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("messages_sent", nil, "Outbound messages")
	r.IncrementCounter("messages_sent", nil, "Outbound messages")
	r.AddToCounter("messages_sent", 3, nil, "Outbound messages")

	assert.Equal(t, float64(5), r.GetCounterValue("messages_sent", nil))
}

func TestRegistry_CountersWithLabels(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("acks", map[string]string{"result": "applied"}, "")
	r.IncrementCounter("acks", map[string]string{"result": "unknown_id"}, "")
	r.IncrementCounter("acks", map[string]string{"result": "unknown_id"}, "")

	assert.Equal(t, float64(1), r.GetCounterValue("acks", map[string]string{"result": "applied"}))
	assert.Equal(t, float64(2), r.GetCounterValue("acks", map[string]string{"result": "unknown_id"}))
}

func TestRegistry_Timers(t *testing.T) {
	r := NewRegistry()

	r.RecordTimer("store_write", 10*time.Millisecond, nil, "")
	r.RecordTimer("store_write", 30*time.Millisecond, nil, "")

	all := r.GetAllMetrics()
	timers, ok := all["timers"].(map[string]*TimerMetric)
	require.True(t, ok)
	timer, ok := timers["store_write"]
	require.True(t, ok)

	assert.Equal(t, int64(2), timer.Count)
	assert.Equal(t, float64(10), timer.Min)
	assert.Equal(t, float64(30), timer.Max)
	assert.Equal(t, float64(20), timer.Average)
}

func TestRegistry_Gauges(t *testing.T) {
	r := NewRegistry()

	r.SetGauge("transport_connected", 1, nil, "")
	r.SetGauge("transport_connected", 0, nil, "")

	all := r.GetAllMetrics()
	gauges, ok := all["gauges"].(map[string]*Metric)
	require.True(t, ok)
	gauge, ok := gauges["transport_connected"]
	require.True(t, ok)
	assert.Equal(t, float64(0), gauge.Value)
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter("messages_sent", nil, "")
	r.Reset()

	assert.Equal(t, float64(0), r.GetCounterValue("messages_sent", nil))
}

func TestMetricKey_LabelOrderStable(t *testing.T) {
	a := metricKey("m", map[string]string{"x": "1", "y": "2"})
	b := metricKey("m", map[string]string{"y": "2", "x": "1"})
	assert.Equal(t, a, b)
}
