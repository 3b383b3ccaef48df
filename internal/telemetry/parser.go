package telemetry

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// smiFieldCount is the number of fields in the nvidia-smi CSV query.
const smiFieldCount = 8

// ParseSMIOutput parses `nvidia-smi --format=csv,noheader,nounits` output into
// Readings. One line per device:
//
//	0, NVIDIA A100-SXM4-40GB, GPU-1e30..., 5, 123, 40960, 31, 68.42
//
// Lines with the wrong field count or unparseable required fields are
// skipped. Temperature and power are optional: nvidia-smi reports
// "[N/A]" or "[Not Supported]" on devices that lack the sensor.
func ParseSMIOutput(data []byte) []Reading {
	var readings []Reading
	scanner := bufio.NewScanner(bytes.NewReader(data))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		r, ok := parseSMILine(line)
		if !ok {
			continue
		}
		readings = append(readings, r)
	}

	return readings
}

// parseSMILine parses a single CSV line into a Reading.
func parseSMILine(line string) (Reading, bool) {
	var r Reading

	parts := strings.Split(line, ",")
	if len(parts) != smiFieldCount {
		return r, false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	idx, err := strconv.Atoi(parts[0])
	if err != nil {
		return r, false
	}
	util, err := strconv.Atoi(parts[3])
	if err != nil {
		return r, false
	}
	memUsed, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return r, false
	}
	memTotal, err := strconv.ParseInt(parts[5], 10, 64)
	if err != nil {
		return r, false
	}

	r = Reading{
		Index:          idx,
		Name:           parts[1],
		UUID:           parts[2],
		UtilizationPct: util,
		MemoryUsedMiB:  memUsed,
		MemoryTotalMiB: memTotal,
		TemperatureC:   parseOptionalFloat(parts[6]),
		PowerDrawW:     parseOptionalFloat(parts[7]),
	}
	return r, true
}

// parseOptionalFloat parses an optional numeric field, returning nil for
// nvidia-smi's not-available markers and anything else unparseable.
func parseOptionalFloat(s string) *float64 {
	if s == "" || isNotAvailable(s) {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func isNotAvailable(s string) bool {
	switch s {
	case "[N/A]", "N/A", "[Not Supported]", "[Unknown Error]":
		return true
	}
	return false
}
