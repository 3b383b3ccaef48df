// Package model defines the check report types emitted by the watcher.
// CheckReport is both the JSON shape written in --json mode and the payload
// handed to the mail notifier.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// HostInfo identifies the machine the watcher is running on.
// Cloud fields are best-effort and empty outside of AWS/GCP/Azure.
type HostInfo struct {
	Hostname     string `json:"hostname"`
	Provider     string `json:"provider,omitempty"` // "aws", "gcp", "azure", ""
	InstanceID   string `json:"instance_id,omitempty"`
	InstanceType string `json:"instance_type,omitempty"`
	Zone         string `json:"zone,omitempty"`
}

// DeviceStatus is the classified telemetry of a single GPU device.
type DeviceStatus struct {
	Index          int    `json:"index"`
	Name           string `json:"name,omitempty"`
	UUID           string `json:"uuid,omitempty"`
	UtilizationPct int    `json:"util"`
	MemoryUsedMiB  int64  `json:"mem_used"`
	MemoryTotalMiB int64  `json:"mem_total"`

	TemperatureC *float64 `json:"temperature_c,omitempty"`
	PowerDrawW   *float64 `json:"power_draw_w,omitempty"`

	Idle bool `json:"idle"`
}

// StatusLine renders the one-line console form of the device status:
//
//	GPU 0: util=5% mem=123/24576 MiB
func (d DeviceStatus) StatusLine() string {
	return fmt.Sprintf("GPU %d: util=%d%% mem=%d/%d MiB",
		d.Index, d.UtilizationPct, d.MemoryUsedMiB, d.MemoryTotalMiB)
}

// CheckReport is the result of one polling cycle.
// Devices holds every visible device; Idle holds the subset classified idle.
type CheckReport struct {
	ReportID  string         `json:"report_id"`
	Host      HostInfo       `json:"host"`
	Timestamp int64          `json:"timestamp"`
	Devices   []DeviceStatus `json:"gpus"`
	Idle      []DeviceStatus `json:"idle"`
}

// IdleIndexes returns the comma-joined indexes of idle devices ("0,2").
func (r *CheckReport) IdleIndexes() string {
	ids := make([]string, 0, len(r.Idle))
	for _, d := range r.Idle {
		ids = append(ids, strconv.Itoa(d.Index))
	}
	return strings.Join(ids, ",")
}

// HasIdle reports whether the check found at least one idle device.
func (r *CheckReport) HasIdle() bool {
	return len(r.Idle) > 0
}
