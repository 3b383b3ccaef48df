// Package telemetry implements the GPU device-telemetry source.
//
// The default source shells out to nvidia-smi with a CSV query
// (index, name, uuid, utilization, memory, temperature, power) and parses
// the output line by line. Parsing is lenient: malformed lines are skipped
// and unsupported optional fields ("[N/A]", "[Not Supported]") are left nil
// so that a single misbehaving device never poisons a whole snapshot.
//
// Each Snapshot call runs one bounded nvidia-smi invocation; the polling
// cadence is owned by the watcher loop, not by this package.
package telemetry
