// Package benchmark measures local task store performance under
// concurrent readers.
//
// It compares the embedded SQLite store against the volatile in-memory
// fallback, validating that the durable path stays fast enough for
// interactive use even with many concurrent consumers (list views,
// sync passes, the dashboard) reading at once.
package benchmark

import (
	"fmt"
	"runtime"
	"sort"
	"time"
)

// Config defines the parameters for a benchmark run.
type Config struct {
	// NumReaders is the number of concurrent readers to simulate
	NumReaders int

	// NumTasks is the total number of tasks seeded into the store
	NumTasks int

	// ReadsPerReader is how many full reads each reader performs
	ReadsPerReader int

	// Mode specifies which store to benchmark ("sqlite" or "memory")
	Mode string

	// DBPath is the database file path (sqlite mode only)
	DBPath string
}

// DefaultConfig returns a benchmark configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		NumReaders:     50,
		NumTasks:       1000,
		ReadsPerReader: 10,
		Mode:           ModeSQLite,
	}
}

// Store modes.
const (
	ModeSQLite = "sqlite"
	ModeMemory = "memory"
)

// Result captures all metrics from a benchmark run.
type Result struct {
	Config Config

	// Latency metrics (read performance)
	Latency LatencyMetrics

	// Throughput metrics
	Throughput ThroughputMetrics

	// Resource usage metrics
	Resources ResourceMetrics

	// Overall test metrics
	SeedDuration  time.Duration
	TotalDuration time.Duration
	ErrorCount    int
	ErrorRate     float64
	Success       bool
}

// LatencyMetrics captures read latency statistics.
type LatencyMetrics struct {
	Min  time.Duration
	P50  time.Duration // Median
	Mean time.Duration
	P95  time.Duration
	P99  time.Duration
	Max  time.Duration

	// Raw durations for analysis
	Durations []time.Duration
}

// ThroughputMetrics captures reads-per-second metrics.
type ThroughputMetrics struct {
	ReadsPerSecond float64
	TotalReads     int
}

// ResourceMetrics captures memory usage.
type ResourceMetrics struct {
	MemoryBeforeBytes uint64
	MemoryAfterBytes  uint64
	MemoryPeakBytes   uint64
	MemoryDeltaBytes  uint64
}

// ComputeStats calculates statistics from raw durations.
func ComputeStats(durations []time.Duration) LatencyMetrics {
	if len(durations) == 0 {
		return LatencyMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	mean := sum / time.Duration(len(sorted))

	p50 := sorted[len(sorted)*50/100]
	p95 := sorted[len(sorted)*95/100]
	p99 := sorted[len(sorted)*99/100]

	return LatencyMetrics{
		Min:       sorted[0],
		P50:       p50,
		Mean:      mean,
		P95:       p95,
		P99:       p99,
		Max:       sorted[len(sorted)-1],
		Durations: sorted,
	}
}

// GetMemoryStats returns current memory usage statistics.
func GetMemoryStats() ResourceMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return ResourceMetrics{
		MemoryBeforeBytes: m.Alloc,
		MemoryAfterBytes:  m.Alloc,
		MemoryPeakBytes:   m.Sys,
	}
}

// CompareMemoryStats computes the delta between before and after memory stats.
func CompareMemoryStats(before, after ResourceMetrics) ResourceMetrics {
	delta := after.MemoryAfterBytes - before.MemoryBeforeBytes

	return ResourceMetrics{
		MemoryBeforeBytes: before.MemoryBeforeBytes,
		MemoryAfterBytes:  after.MemoryAfterBytes,
		MemoryPeakBytes:   after.MemoryPeakBytes,
		MemoryDeltaBytes:  delta,
	}
}

// FormatBytes formats bytes into a human-readable string.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats a duration into a human-readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Microsecond {
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000.0)
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000.0)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// PrintResult outputs a formatted benchmark result.
func PrintResult(result Result) {
	fmt.Printf("\n=== Benchmark Results (%s mode) ===\n\n", result.Config.Mode)

	fmt.Printf("Configuration:\n")
	fmt.Printf("  Concurrent Readers: %d\n", result.Config.NumReaders)
	fmt.Printf("  Total Tasks:        %d\n", result.Config.NumTasks)
	fmt.Printf("  Reads per Reader:   %d\n", result.Config.ReadsPerReader)
	fmt.Printf("\n")

	fmt.Printf("Latency:\n")
	fmt.Printf("  Min:       %s\n", FormatDuration(result.Latency.Min))
	fmt.Printf("  P50:       %s\n", FormatDuration(result.Latency.P50))
	fmt.Printf("  Mean:      %s\n", FormatDuration(result.Latency.Mean))
	fmt.Printf("  P95:       %s\n", FormatDuration(result.Latency.P95))
	fmt.Printf("  P99:       %s\n", FormatDuration(result.Latency.P99))
	fmt.Printf("  Max:       %s\n", FormatDuration(result.Latency.Max))
	fmt.Printf("\n")

	fmt.Printf("Throughput:\n")
	fmt.Printf("  Reads/sec:         %.2f\n", result.Throughput.ReadsPerSecond)
	fmt.Printf("  Total Reads:       %d\n", result.Throughput.TotalReads)
	fmt.Printf("\n")

	fmt.Printf("Resources:\n")
	fmt.Printf("  Memory Before:     %s\n", FormatBytes(result.Resources.MemoryBeforeBytes))
	fmt.Printf("  Memory After:      %s\n", FormatBytes(result.Resources.MemoryAfterBytes))
	fmt.Printf("  Memory Peak:       %s\n", FormatBytes(result.Resources.MemoryPeakBytes))
	fmt.Printf("  Memory Delta:      %s\n", FormatBytes(result.Resources.MemoryDeltaBytes))
	fmt.Printf("\n")

	fmt.Printf("Overall:\n")
	fmt.Printf("  Seed Time:         %s\n", FormatDuration(result.SeedDuration))
	fmt.Printf("  Total Duration:    %s\n", FormatDuration(result.TotalDuration))
	fmt.Printf("  Errors:            %d (%.2f%%)\n", result.ErrorCount, result.ErrorRate*100)
	fmt.Printf("  Success:           %v\n", result.Success)
	fmt.Printf("\n")
}
