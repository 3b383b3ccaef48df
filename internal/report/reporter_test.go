package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpuwatch/gpuwatch-agent/pkg/model"
)

func sampleReport() *model.CheckReport {
	devices := []model.DeviceStatus{
		{Index: 0, Name: "NVIDIA A100", UtilizationPct: 2, MemoryUsedMiB: 123, MemoryTotalMiB: 40960, Idle: true},
		{Index: 1, Name: "NVIDIA A100", UtilizationPct: 97, MemoryUsedMiB: 38912, MemoryTotalMiB: 40960, Idle: false},
	}
	return &model.CheckReport{
		ReportID:  "r-1",
		Host:      model.HostInfo{Hostname: "gpu-node-1"},
		Timestamp: 1700000000000,
		Devices:   devices,
		Idle:      devices[:1],
	}
}

func TestConsoleReporter_TextReport(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, false)

	require.NoError(t, r.Report(sampleReport()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "GPU 0: util=2% mem=123/40960 MiB", lines[0])
	assert.Equal(t, "GPU 1: util=97% mem=38912/40960 MiB", lines[1])
}

func TestConsoleReporter_JSONReport(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, true)

	require.NoError(t, r.Report(sampleReport()))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	gpus, ok := decoded["gpus"].([]interface{})
	require.True(t, ok, "report JSON must have a gpus array")
	assert.Len(t, gpus, 2)

	idle, ok := decoded["idle"].([]interface{})
	require.True(t, ok, "report JSON must have an idle array")
	assert.Len(t, idle, 1)

	first, ok := gpus[0].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, first, "util")
	assert.Contains(t, first, "mem_used")
	assert.Contains(t, first, "mem_total")
}

func TestConsoleReporter_Alert(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, false)

	require.NoError(t, r.Alert(sampleReport()))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "ALERT: idle GPU(s) detected -> 0\n"))
	assert.True(t, strings.HasSuffix(out, "\a"), "alert must ring the terminal bell")
}

func TestConsoleReporter_AlertInJSONMode(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, true)

	require.NoError(t, r.Alert(sampleReport()))
	assert.Contains(t, buf.String(), "ALERT: idle GPU(s) detected -> 0")
}
