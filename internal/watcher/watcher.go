// Package watcher implements the polling/classification/alerting loop at the
// core of the agent.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gpuwatch/gpuwatch-agent/internal/classify"
	"github.com/gpuwatch/gpuwatch-agent/internal/config"
	"github.com/gpuwatch/gpuwatch-agent/internal/errors"
	"github.com/gpuwatch/gpuwatch-agent/internal/observability"
	"github.com/gpuwatch/gpuwatch-agent/internal/report"
	"github.com/gpuwatch/gpuwatch-agent/internal/telemetry"
	"github.com/gpuwatch/gpuwatch-agent/pkg/model"
)

// Notifier dispatches an alert report for out-of-band delivery. Notify must
// never block; it returns an error when the alert cannot be accepted
// (typically a full queue).
type Notifier interface {
	Notify(r *model.CheckReport) error
}

// Watcher is the main orchestrator: it polls the telemetry source at a fixed
// interval, classifies devices, reports every check, and raises alerts when
// idle devices are found.
type Watcher struct {
	config         *config.Config
	source         telemetry.Source
	classifier     *classify.Classifier
	reporter       report.Reporter
	notifier       Notifier // nil when email notification is disabled
	stateMachine   *StateMachine
	errorCollector *errors.ErrorCollector
	metrics        *observability.Metrics
	host           model.HostInfo

	latestReport atomic.Pointer[model.CheckReport]
	ready        atomic.Bool
	startedAt    time.Time
}

// New creates a Watcher with all required dependencies. notifier may be nil.
func New(
	cfg *config.Config,
	source telemetry.Source,
	classifier *classify.Classifier,
	reporter report.Reporter,
	notifier Notifier,
	stateMachine *StateMachine,
	errCollector *errors.ErrorCollector,
	metrics *observability.Metrics,
	host model.HostInfo,
) *Watcher {
	return &Watcher{
		config:         cfg,
		source:         source,
		classifier:     classifier,
		reporter:       reporter,
		notifier:       notifier,
		stateMachine:   stateMachine,
		errorCollector: errCollector,
		metrics:        metrics,
		host:           host,
		startedAt:      time.Now(),
	}
}

// IsReady reports whether the watcher has completed at least one successful
// check. Implements health.ReadinessChecker.
func (w *Watcher) IsReady() bool {
	return w.ready.Load()
}

// LatestReport returns the most recent CheckReport, or nil if none has been
// produced yet. Implements health.ReportProvider.
func (w *Watcher) LatestReport() interface{} {
	r := w.latestReport.Load()
	if r == nil {
		return nil
	}
	return r
}

// Run executes the polling loop until the context is canceled or the
// telemetry source fails. The first check runs immediately.
func (w *Watcher) Run(ctx context.Context) error {
	w.transition(StateRunning, "watcher started")
	slog.Info("watcher is running",
		"interval", w.config.Interval,
		"util_threshold_pct", w.config.UtilThresholdPct,
		"mem_threshold_mib", w.config.MemThresholdMiB,
		"alert_cooldown", w.config.AlertCooldown,
	)

	if _, err := w.check(ctx); err != nil {
		w.transition(StateStopped, "telemetry failure")
		return err
	}

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.transition(StateStopped, "context canceled")
			return ctx.Err()
		case <-ticker.C:
		}

		if w.stateMachine.State() == StateCooldown && w.stateMachine.IsCooldownExpired() {
			w.transition(StateRunning, "cooldown expired")
		}

		if _, err := w.check(ctx); err != nil {
			w.transition(StateStopped, "telemetry failure")
			return err
		}
	}
}

// RunOnce performs a single check and reports whether an alert was raised.
func (w *Watcher) RunOnce(ctx context.Context) (bool, error) {
	w.transition(StateRunning, "single check")
	alerted, err := w.check(ctx)
	w.transition(StateStopped, "single check complete")
	return alerted, err
}

// check runs one full cycle: query, classify, report, alert.
// A telemetry failure is returned to the caller and terminates the run;
// reporter and notifier failures are recorded but never fatal.
func (w *Watcher) check(ctx context.Context) (bool, error) {
	start := time.Now()

	queryStart := time.Now()
	readings, err := w.source.Snapshot(ctx)
	w.metrics.TelemetryQueryDuration.Observe(time.Since(queryStart).Seconds())

	if err != nil {
		w.metrics.ChecksTotal.WithLabelValues("error").Inc()
		w.errorCollector.Report(errors.WatchError{
			Code:      errors.ErrTelemetryUnavailable,
			Message:   fmt.Sprintf("telemetry query failed: %v", err),
			Component: "watcher",
			Timestamp: time.Now().UnixMilli(),
			Err:       err,
		})
		return false, fmt.Errorf("telemetry query failed: %w", err)
	}

	rep := w.classifier.Evaluate(readings, w.host)
	w.latestReport.Store(rep)
	w.ready.Store(true)

	w.metrics.DevicesTotal.Set(float64(len(rep.Devices)))
	w.metrics.IdleDevices.Set(float64(len(rep.Idle)))

	if err := w.reporter.Report(rep); err != nil {
		slog.Warn("report output failed", "error", err)
	}

	alerted := rep.HasIdle()
	if alerted {
		w.metrics.AlertsTotal.Inc()
		slog.Info("idle GPU(s) detected",
			"idle", rep.IdleIndexes(),
			"devices", len(rep.Devices),
		)
		if err := w.reporter.Alert(rep); err != nil {
			slog.Warn("alert output failed", "error", err)
		}
		w.dispatchNotification(rep)
	}

	w.metrics.ChecksTotal.WithLabelValues("success").Inc()
	w.metrics.CheckDuration.Observe(time.Since(start).Seconds())

	return alerted, nil
}

// dispatchNotification hands the report to the notifier unless notifications
// are suppressed by the cooldown window.
func (w *Watcher) dispatchNotification(rep *model.CheckReport) {
	if w.notifier == nil {
		return
	}

	if !w.stateMachine.ShouldNotify() {
		slog.Debug("notification suppressed by cooldown",
			"remaining", w.stateMachine.CooldownRemaining().Round(time.Second))
		return
	}

	if err := w.notifier.Notify(rep); err != nil {
		w.errorCollector.Report(errors.WatchError{
			Code:      errors.ErrMailQueueFull,
			Message:   fmt.Sprintf("alert notification dropped: %v", err),
			Component: "watcher",
			Timestamp: time.Now().UnixMilli(),
			Err:       err,
		})
		slog.Warn("alert notification dropped", "error", err)
		return
	}

	w.stateMachine.BeginCooldown(w.config.AlertCooldown, "alert notified")
	if w.config.AlertCooldown > 0 {
		w.metrics.SetWatcherState(string(StateCooldown))
	}
}

// transition moves the state machine and keeps the state gauge in sync.
func (w *Watcher) transition(state WatcherState, reason string) {
	w.stateMachine.TransitionTo(state, reason)
	w.metrics.SetWatcherState(string(state))
}
