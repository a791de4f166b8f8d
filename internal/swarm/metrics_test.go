package swarm

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, collector prometheus.Collector) map[string]*dto.MetricFamily {
	t.Helper()
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(collector))
	families, err := registry.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, family := range families {
		out[family.GetName()] = family
	}
	return out
}

func labelValue(metric *dto.Metric, name string) string {
	for _, label := range metric.GetLabel() {
		if label.GetName() == name {
			return label.GetValue()
		}
	}
	return ""
}

func TestMetricsCollector(t *testing.T) {
	c, _, _ := newTestCoordinator(t, testConfig())
	launchReady(t, c, 2)
	c.Dispatch(context.Background(), ModeSynchronizedDance)
	_ = c.Handler().HandleLaunch([]byte(`{"device_id":7,"launch_time":0,"heading":0}`))

	families := gather(t, NewMetricsCollector(c))

	ready := families["duckswarm_devices_ready"]
	require.NotNil(t, ready)
	assert.Equal(t, 1.0, ready.GetMetric()[0].GetGauge().GetValue())

	modes := families["duckswarm_mode"]
	require.NotNil(t, modes)
	require.Len(t, modes.GetMetric(), len(AllModes))
	for _, metric := range modes.GetMetric() {
		want := 0.0
		if labelValue(metric, "mode") == ModeFloat.String() {
			want = 1
		}
		assert.Equal(t, want, metric.GetGauge().GetValue(), labelValue(metric, "mode"))
	}

	launched := families["duckswarm_device_launched_bool"]
	require.NotNil(t, launched)
	for _, metric := range launched.GetMetric() {
		want := 0.0
		if labelValue(metric, "device_id") == "2" {
			want = 1
		}
		assert.Equal(t, want, metric.GetGauge().GetValue())
	}

	published := families["duckswarm_commands_published_total"]
	require.NotNil(t, published)
	assert.Equal(t, 1.0, published.GetMetric()[0].GetCounter().GetValue())

	rejected := families["duckswarm_inbound_rejected_total"]
	require.NotNil(t, rejected)
	assert.Equal(t, "unknown_device", labelValue(rejected.GetMetric()[0], "reason"))
}
