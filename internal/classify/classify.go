// Package classify decides which GPU devices count as idle and assembles
// per-check reports from raw telemetry.
package classify

import (
	"github.com/google/uuid"

	"github.com/gpuwatch/gpuwatch-agent/internal/errors"
	"github.com/gpuwatch/gpuwatch-agent/internal/telemetry"
	"github.com/gpuwatch/gpuwatch-agent/pkg/model"
)

// Classifier classifies devices as idle or busy against fixed thresholds.
// Both comparisons are inclusive: a device at exactly the threshold is idle.
type Classifier struct {
	utilThresholdPct int
	memThresholdMiB  int64
	clock            errors.Clock
}

// New creates a Classifier with the given thresholds.
func New(utilThresholdPct int, memThresholdMiB int64, clock errors.Clock) *Classifier {
	return &Classifier{
		utilThresholdPct: utilThresholdPct,
		memThresholdMiB:  memThresholdMiB,
		clock:            clock,
	}
}

// IsIdle reports whether a single reading is below both thresholds.
func (c *Classifier) IsIdle(r telemetry.Reading) bool {
	return r.UtilizationPct <= c.utilThresholdPct && r.MemoryUsedMiB <= c.memThresholdMiB
}

// Evaluate classifies all readings and builds a CheckReport with a fresh
// report ID and timestamp.
func (c *Classifier) Evaluate(readings []telemetry.Reading, host model.HostInfo) *model.CheckReport {
	report := &model.CheckReport{
		ReportID:  uuid.New().String(),
		Host:      host,
		Timestamp: c.clock.Now().UnixMilli(),
		Devices:   make([]model.DeviceStatus, 0, len(readings)),
		Idle:      []model.DeviceStatus{},
	}

	for _, r := range readings {
		d := model.DeviceStatus{
			Index:          r.Index,
			Name:           r.Name,
			UUID:           r.UUID,
			UtilizationPct: r.UtilizationPct,
			MemoryUsedMiB:  r.MemoryUsedMiB,
			MemoryTotalMiB: r.MemoryTotalMiB,
			TemperatureC:   r.TemperatureC,
			PowerDrawW:     r.PowerDrawW,
			Idle:           c.IsIdle(r),
		}
		report.Devices = append(report.Devices, d)
		if d.Idle {
			report.Idle = append(report.Idle, d)
		}
	}

	return report
}
