package telemetry

// Reading is the raw telemetry of a single GPU device as reported by the
// source, before idle classification.
type Reading struct {
	Index          int
	Name           string
	UUID           string
	UtilizationPct int
	MemoryUsedMiB  int64
	MemoryTotalMiB int64

	// Optional fields, nil when the device or driver does not report them.
	TemperatureC *float64
	PowerDrawW   *float64
}
