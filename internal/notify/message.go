package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/gpuwatch/gpuwatch-agent/pkg/model"
)

// buildSubject renders the alert subject line: "GPU idle alert: 0,2".
func buildSubject(r *model.CheckReport) string {
	return "GPU idle alert: " + r.IdleIndexes()
}

// buildBody renders the plain-text alert body: host identity, one status
// line per device, and the check timestamp.
func buildBody(r *model.CheckReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Idle GPU(s) detected on %s", r.Host.Hostname)
	if r.Host.Provider != "" {
		fmt.Fprintf(&b, " (%s %s", r.Host.Provider, r.Host.InstanceID)
		if r.Host.InstanceType != "" {
			fmt.Fprintf(&b, ", %s", r.Host.InstanceType)
		}
		if r.Host.Zone != "" {
			fmt.Fprintf(&b, ", %s", r.Host.Zone)
		}
		b.WriteString(")")
	}
	b.WriteString("\n\n")

	for _, d := range r.Devices {
		b.WriteString(d.StatusLine())
		if d.Idle {
			b.WriteString("  [idle]")
		}
		b.WriteString("\n")
	}

	ts := time.UnixMilli(r.Timestamp).UTC().Format(time.RFC3339)
	fmt.Fprintf(&b, "\nChecked at %s (report %s)\n", ts, r.ReportID)

	return b.String()
}
