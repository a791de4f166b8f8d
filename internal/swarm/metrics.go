package swarm

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type counters struct {
	published     *prometheus.CounterVec
	publishErrors *prometheus.CounterVec
	rejected      *prometheus.CounterVec
}

func newCounters() *counters {
	return &counters{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duckswarm_commands_published_total",
			Help: "Messages published to ducks by kind",
		}, []string{"kind"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duckswarm_publish_errors_total",
			Help: "Publishes the bus client reported as failed, by kind",
		}, []string{"kind"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duckswarm_inbound_rejected_total",
			Help: "Inbound coordinator messages discarded, by reason",
		}, []string{"reason"}),
	}
}

// MetricsCollector exposes coordinator and fleet state.
type MetricsCollector struct {
	coordinator *Coordinator

	mode         *prometheus.GaugeVec
	readyCount   prometheus.Gauge
	launched     *prometheus.GaugeVec
	ready        *prometheus.GaugeVec
	lastDock     prometheus.Gauge
	modeDuration prometheus.Gauge
	running      prometheus.Gauge
}

func NewMetricsCollector(coordinator *Coordinator) *MetricsCollector {
	deviceLabels := []string{"device_id"}
	return &MetricsCollector{
		coordinator: coordinator,
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "duckswarm_mode",
			Help: "Current swarm mode (1=active)",
		}, []string{"mode"}),
		readyCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "duckswarm_devices_ready",
			Help: "Ducks whose launch and calibration windows have elapsed",
		}),
		launched: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "duckswarm_device_launched_bool",
			Help: "Duck has been launched (1=yes, 0=no)",
		}, deviceLabels),
		ready: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "duckswarm_device_ready_bool",
			Help: "Duck is ready to dance (1=yes, 0=no)",
		}, deviceLabels),
		lastDock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "duckswarm_last_dock_timestamp_seconds",
			Help: "Last time the swarm was sent to dock (epoch seconds)",
		}),
		modeDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "duckswarm_mode_duration_seconds",
			Help: "Nominal duration of the most recently dispatched mode",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "duckswarm_loop_running",
			Help: "Control loop is running (1=yes, 0=no)",
		}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.mode.Describe(ch)
	c.readyCount.Describe(ch)
	c.launched.Describe(ch)
	c.ready.Describe(ch)
	c.lastDock.Describe(ch)
	c.modeDuration.Describe(ch)
	c.running.Describe(ch)
	c.coordinator.counters.published.Describe(ch)
	c.coordinator.counters.publishErrors.Describe(ch)
	c.coordinator.counters.rejected.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	status := c.coordinator.Status()

	c.mode.Reset()
	for _, mode := range AllModes {
		value := 0.0
		if mode == status.Mode {
			value = 1
		}
		c.mode.WithLabelValues(mode.String()).Set(value)
	}

	c.launched.Reset()
	c.ready.Reset()
	readyCount := 0
	for _, device := range status.Devices {
		id := strconv.Itoa(device.ID)
		c.launched.WithLabelValues(id).Set(boolFloat(device.Launched))
		c.ready.WithLabelValues(id).Set(boolFloat(device.IsReady()))
		if device.IsReady() {
			readyCount++
		}
	}
	c.readyCount.Set(float64(readyCount))
	c.lastDock.Set(float64(status.LastDock.Unix()))
	c.modeDuration.Set(status.ModeDuration.Seconds())
	c.running.Set(boolFloat(status.Running))

	c.mode.Collect(ch)
	c.readyCount.Collect(ch)
	c.launched.Collect(ch)
	c.ready.Collect(ch)
	c.lastDock.Collect(ch)
	c.modeDuration.Collect(ch)
	c.running.Collect(ch)
	c.coordinator.counters.published.Collect(ch)
	c.coordinator.counters.publishErrors.Collect(ch)
	c.coordinator.counters.rejected.Collect(ch)
}

func boolFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
