package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// watcherStates are the lifecycle states exported on the state gauge.
var watcherStates = []string{"starting", "running", "cooldown", "stopped"}

// Metrics holds all Prometheus metrics for watcher self-monitoring.
// It uses a custom registry to avoid polluting the global default.
type Metrics struct {
	Registry *prometheus.Registry

	// Check metrics
	CheckDuration          prometheus.Histogram
	ChecksTotal            *prometheus.CounterVec
	TelemetryQueryDuration prometheus.Histogram

	// Device metrics
	DevicesTotal prometheus.Gauge
	IdleDevices  prometheus.Gauge

	// Alert metrics
	AlertsTotal prometheus.Counter

	// Mail metrics
	MailSendsTotal *prometheus.CounterVec
	MailRetries    prometheus.Counter
	MailQueueDepth prometheus.Gauge

	// State metrics
	WatcherState *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all Prometheus metrics
// registered on a custom registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		CheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpuwatch_check_duration_seconds",
			Help:    "Duration of full check cycles in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpuwatch_checks_total",
			Help: "Total number of check cycles.",
		}, []string{"status"}),
		TelemetryQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpuwatch_telemetry_query_duration_seconds",
			Help:    "Duration of nvidia-smi telemetry queries in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		DevicesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpuwatch_devices",
			Help: "Number of GPU devices seen in the latest check.",
		}),
		IdleDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpuwatch_idle_devices",
			Help: "Number of GPU devices classified idle in the latest check.",
		}),

		AlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpuwatch_alerts_total",
			Help: "Total number of check cycles that raised an idle alert.",
		}),

		MailSendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpuwatch_mail_sends_total",
			Help: "Total number of mail delivery attempts by final status.",
		}, []string{"status"}),
		MailRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpuwatch_mail_retries_total",
			Help: "Total number of mail delivery retry attempts.",
		}),
		MailQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpuwatch_mail_queue_depth",
			Help: "Current number of alerts waiting in the mail queue.",
		}),

		WatcherState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpuwatch_state",
			Help: "Current watcher state (1 = active, 0 = inactive).",
		}, []string{"state"}),
	}

	// Register all metrics with the custom registry.
	reg.MustRegister(
		m.CheckDuration,
		m.ChecksTotal,
		m.TelemetryQueryDuration,
		m.DevicesTotal,
		m.IdleDevices,
		m.AlertsTotal,
		m.MailSendsTotal,
		m.MailRetries,
		m.MailQueueDepth,
		m.WatcherState,
	)

	return m
}

// SetWatcherState marks exactly one state gauge active.
func (m *Metrics) SetWatcherState(state string) {
	for _, s := range watcherStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		m.WatcherState.WithLabelValues(s).Set(v)
	}
}
