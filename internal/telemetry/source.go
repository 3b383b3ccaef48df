package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// smiQueryFields is the --query-gpu argument. Must stay in sync with
// smiFieldCount in parser.go.
const smiQueryFields = "index,name,uuid,utilization.gpu,memory.used,memory.total,temperature.gpu,power.draw"

// Source abstracts GPU telemetry collection for testability.
type Source interface {
	// Snapshot queries all visible GPU devices once.
	Snapshot(ctx context.Context) ([]Reading, error)
}

// SMISource queries GPU telemetry by invoking the nvidia-smi binary.
type SMISource struct {
	path    string
	timeout time.Duration
}

// NewSMISource creates a Source backed by nvidia-smi at the given path.
func NewSMISource(path string, timeout time.Duration) *SMISource {
	return &SMISource{path: path, timeout: timeout}
}

// Snapshot runs one nvidia-smi query bounded by the configured timeout.
// An empty device list (no GPUs visible) is not an error.
func (s *SMISource) Snapshot(ctx context.Context) ([]Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.path,
		"--query-gpu="+smiQueryFields,
		"--format=csv,noheader,nounits",
	)

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("telemetry: %s failed: %w: %s", s.path, err, firstLine(exitErr.Stderr))
		}
		return nil, fmt.Errorf("telemetry: %s failed: %w", s.path, err)
	}

	return ParseSMIOutput(out), nil
}

// firstLine returns the first non-empty line of stderr output for error messages.
func firstLine(b []byte) string {
	for _, line := range bytes.Split(b, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			return string(line)
		}
	}
	return ""
}
