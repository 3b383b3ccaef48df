package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpuwatch/gpuwatch-agent/internal/telemetry"
	"github.com/gpuwatch/gpuwatch-agent/pkg/model"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time {
	return m.now
}

func TestIsIdle_InclusiveThresholds(t *testing.T) {
	c := New(5, 500, &mockClock{now: time.Now()})

	tests := []struct {
		name    string
		util    int
		memUsed int64
		idle    bool
	}{
		{"both zero", 0, 0, true},
		{"util at threshold", 5, 100, true},
		{"mem at threshold", 3, 500, true},
		{"both at threshold", 5, 500, true},
		{"util above threshold", 6, 100, false},
		{"mem above threshold", 3, 501, false},
		{"both above threshold", 90, 30000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := telemetry.Reading{UtilizationPct: tt.util, MemoryUsedMiB: tt.memUsed}
			assert.Equal(t, tt.idle, c.IsIdle(r))
		})
	}
}

func TestEvaluate(t *testing.T) {
	clock := &mockClock{now: time.UnixMilli(1700000000000)}
	c := New(5, 500, clock)
	host := model.HostInfo{Hostname: "gpu-node-3", Provider: "aws", InstanceID: "i-abc"}

	readings := []telemetry.Reading{
		{Index: 0, Name: "NVIDIA A100", UUID: "GPU-a", UtilizationPct: 2, MemoryUsedMiB: 100, MemoryTotalMiB: 40960},
		{Index: 1, Name: "NVIDIA A100", UUID: "GPU-b", UtilizationPct: 95, MemoryUsedMiB: 38000, MemoryTotalMiB: 40960},
		{Index: 2, Name: "NVIDIA A100", UUID: "GPU-c", UtilizationPct: 5, MemoryUsedMiB: 500, MemoryTotalMiB: 40960},
	}

	report := c.Evaluate(readings, host)
	require.NotNil(t, report)

	assert.NotEmpty(t, report.ReportID)
	assert.Equal(t, int64(1700000000000), report.Timestamp)
	assert.Equal(t, host, report.Host)

	require.Len(t, report.Devices, 3)
	assert.True(t, report.Devices[0].Idle)
	assert.False(t, report.Devices[1].Idle)
	assert.True(t, report.Devices[2].Idle)

	require.Len(t, report.Idle, 2)
	assert.Equal(t, 0, report.Idle[0].Index)
	assert.Equal(t, 2, report.Idle[1].Index)
	assert.Equal(t, "0,2", report.IdleIndexes())
	assert.True(t, report.HasIdle())
}

func TestEvaluate_NoReadings(t *testing.T) {
	c := New(5, 500, &mockClock{now: time.Now()})

	report := c.Evaluate(nil, model.HostInfo{Hostname: "h"})
	require.NotNil(t, report)
	assert.Empty(t, report.Devices)
	assert.NotNil(t, report.Idle)
	assert.Empty(t, report.Idle)
	assert.False(t, report.HasIdle())
}

func TestEvaluate_UniqueReportIDs(t *testing.T) {
	c := New(5, 500, &mockClock{now: time.Now()})
	host := model.HostInfo{Hostname: "h"}

	a := c.Evaluate(nil, host)
	b := c.Evaluate(nil, host)
	assert.NotEqual(t, a.ReportID, b.ReportID)
}
