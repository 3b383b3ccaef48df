// Package report renders check results to the console, either as
// human-readable lines or as one JSON object per check.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/gpuwatch/gpuwatch-agent/pkg/model"
)

// bel is the ASCII bell, emitted with every alert as the local signal.
const bel = "\a"

// Reporter renders check reports and alerts.
type Reporter interface {
	// Report renders the per-device status of one check.
	Report(r *model.CheckReport) error
	// Alert renders the idle-devices alert line for a check that found
	// idle devices.
	Alert(r *model.CheckReport) error
}

// ConsoleReporter writes reports to a single writer, typically stdout.
// It is safe for concurrent use.
type ConsoleReporter struct {
	mu         sync.Mutex
	w          io.Writer
	jsonOutput bool
}

// NewConsoleReporter creates a ConsoleReporter. When jsonOutput is true each
// check is rendered as one JSON object instead of per-device text lines.
func NewConsoleReporter(w io.Writer, jsonOutput bool) *ConsoleReporter {
	return &ConsoleReporter{w: w, jsonOutput: jsonOutput}
}

// Report writes the device status lines (or the JSON report) for one check.
func (c *ConsoleReporter) Report(r *model.CheckReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.jsonOutput {
		if err := json.NewEncoder(c.w).Encode(r); err != nil {
			return fmt.Errorf("report: encoding JSON: %w", err)
		}
		return nil
	}

	for _, d := range r.Devices {
		if _, err := fmt.Fprintln(c.w, d.StatusLine()); err != nil {
			return fmt.Errorf("report: writing status: %w", err)
		}
	}
	return nil
}

// Alert writes the alert line plus a terminal bell. Emitted in both text and
// JSON modes so a terminal operator always gets the local signal.
func (c *ConsoleReporter) Alert(r *model.CheckReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.w, "ALERT: idle GPU(s) detected -> %s\n%s", r.IdleIndexes(), bel); err != nil {
		return fmt.Errorf("report: writing alert: %w", err)
	}
	return nil
}
