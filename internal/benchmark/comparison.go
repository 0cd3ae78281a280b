package benchmark

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ComparisonResult contains the results of comparing the two store modes.
type ComparisonResult struct {
	SQLite Result
	Memory Result

	// Improvement ratios (positive = sqlite is better)
	LatencyImprovement    map[string]float64 // min, p50, mean, p95, p99, max
	ThroughputImprovement float64
	MemoryImprovement     float64
	OverallWinner         string // "sqlite", "memory", or "tie"
	WinCount              map[string]int
}

// Compare benchmarks both store modes with the same workload and
// compares results. The SQLite database is created under workDir.
func Compare(config Config, workDir string) (*ComparisonResult, error) {
	fmt.Println("Running SQLite benchmark...")
	sqliteConfig := config
	sqliteConfig.Mode = ModeSQLite
	sqliteConfig.DBPath = filepath.Join(workDir, "bench.db")

	sqliteResult, err := Run(sqliteConfig)
	if err != nil {
		return nil, fmt.Errorf("sqlite benchmark failed: %w", err)
	}

	fmt.Println("Running in-memory benchmark...")
	memoryConfig := config
	memoryConfig.Mode = ModeMemory
	memoryConfig.DBPath = ""

	memoryResult, err := Run(memoryConfig)
	if err != nil {
		return nil, fmt.Errorf("memory benchmark failed: %w", err)
	}

	result := &ComparisonResult{
		SQLite:             *sqliteResult,
		Memory:             *memoryResult,
		LatencyImprovement: make(map[string]float64),
		WinCount:           make(map[string]int),
	}

	result.LatencyImprovement["min"] = calculateImprovement(
		sqliteResult.Latency.Min.Seconds(),
		memoryResult.Latency.Min.Seconds(),
	)
	result.LatencyImprovement["p50"] = calculateImprovement(
		sqliteResult.Latency.P50.Seconds(),
		memoryResult.Latency.P50.Seconds(),
	)
	result.LatencyImprovement["mean"] = calculateImprovement(
		sqliteResult.Latency.Mean.Seconds(),
		memoryResult.Latency.Mean.Seconds(),
	)
	result.LatencyImprovement["p95"] = calculateImprovement(
		sqliteResult.Latency.P95.Seconds(),
		memoryResult.Latency.P95.Seconds(),
	)
	result.LatencyImprovement["p99"] = calculateImprovement(
		sqliteResult.Latency.P99.Seconds(),
		memoryResult.Latency.P99.Seconds(),
	)
	result.LatencyImprovement["max"] = calculateImprovement(
		sqliteResult.Latency.Max.Seconds(),
		memoryResult.Latency.Max.Seconds(),
	)

	if memoryResult.Throughput.ReadsPerSecond > 0 {
		result.ThroughputImprovement = (sqliteResult.Throughput.ReadsPerSecond - memoryResult.Throughput.ReadsPerSecond) /
			memoryResult.Throughput.ReadsPerSecond * 100
	}

	result.MemoryImprovement = calculateImprovement(
		float64(sqliteResult.Resources.MemoryDeltaBytes),
		float64(memoryResult.Resources.MemoryDeltaBytes),
	)

	for _, improvement := range result.LatencyImprovement {
		if improvement > 0 {
			result.WinCount["sqlite"]++
		} else if improvement < 0 {
			result.WinCount["memory"]++
		}
	}
	if result.ThroughputImprovement > 0 {
		result.WinCount["sqlite"]++
	} else if result.ThroughputImprovement < 0 {
		result.WinCount["memory"]++
	}
	if result.MemoryImprovement > 0 {
		result.WinCount["sqlite"]++
	} else if result.MemoryImprovement < 0 {
		result.WinCount["memory"]++
	}

	switch {
	case result.WinCount["sqlite"] > result.WinCount["memory"]:
		result.OverallWinner = "sqlite"
	case result.WinCount["memory"] > result.WinCount["sqlite"]:
		result.OverallWinner = "memory"
	default:
		result.OverallWinner = "tie"
	}

	return result, nil
}

// calculateImprovement calculates percentage improvement.
// Positive = sqlite is better, negative = memory is better.
func calculateImprovement(sqliteValue, memoryValue float64) float64 {
	if memoryValue == 0 {
		return 0
	}
	return (memoryValue - sqliteValue) / memoryValue * 100
}

// PrintComparison outputs a formatted comparison report.
func PrintComparison(result *ComparisonResult) {
	separator := strings.Repeat("=", 80)
	fmt.Printf("\n%s\n", separator)
	fmt.Printf("STORE COMPARISON: SQLite vs In-Memory\n")
	fmt.Printf("%s\n\n", separator)

	fmt.Printf("Configuration:\n")
	fmt.Printf("  Concurrent Readers: %d\n", result.SQLite.Config.NumReaders)
	fmt.Printf("  Total Tasks:        %d\n", result.SQLite.Config.NumTasks)
	fmt.Printf("  Reads per Reader:   %d\n\n", result.SQLite.Config.ReadsPerReader)

	fmt.Printf("LATENCY COMPARISON:\n")
	fmt.Printf("%-10s | %-12s | %-12s | %-15s\n", "Metric", "SQLite", "Memory", "Improvement")
	lineSeparator := strings.Repeat("-", 60)
	fmt.Printf("%s\n", lineSeparator)

	printLatencyRow("Min", result.SQLite.Latency.Min, result.Memory.Latency.Min, result.LatencyImprovement["min"])
	printLatencyRow("P50", result.SQLite.Latency.P50, result.Memory.Latency.P50, result.LatencyImprovement["p50"])
	printLatencyRow("Mean", result.SQLite.Latency.Mean, result.Memory.Latency.Mean, result.LatencyImprovement["mean"])
	printLatencyRow("P95", result.SQLite.Latency.P95, result.Memory.Latency.P95, result.LatencyImprovement["p95"])
	printLatencyRow("P99", result.SQLite.Latency.P99, result.Memory.Latency.P99, result.LatencyImprovement["p99"])
	printLatencyRow("Max", result.SQLite.Latency.Max, result.Memory.Latency.Max, result.LatencyImprovement["max"])
	fmt.Printf("\n")

	fmt.Printf("THROUGHPUT COMPARISON:\n")
	fmt.Printf("  SQLite:     %.2f reads/sec\n", result.SQLite.Throughput.ReadsPerSecond)
	fmt.Printf("  Memory:     %.2f reads/sec\n", result.Memory.Throughput.ReadsPerSecond)
	fmt.Printf("  Improvement: %s%.2f%%\n\n", formatSign(result.ThroughputImprovement), result.ThroughputImprovement)

	fmt.Printf("MEMORY COMPARISON:\n")
	fmt.Printf("  SQLite Delta:   %s\n", FormatBytes(result.SQLite.Resources.MemoryDeltaBytes))
	fmt.Printf("  Memory Delta:   %s\n", FormatBytes(result.Memory.Resources.MemoryDeltaBytes))
	fmt.Printf("  Improvement:    %s%.2f%%\n\n", formatSign(result.MemoryImprovement), result.MemoryImprovement)

	fmt.Printf("SUMMARY:\n")
	fmt.Printf("  SQLite Wins:    %d metrics\n", result.WinCount["sqlite"])
	fmt.Printf("  Memory Wins:    %d metrics\n", result.WinCount["memory"])
	fmt.Printf("  Overall Winner: %s\n\n", strings.ToUpper(result.OverallWinner))

	fmt.Printf("KEY INSIGHTS:\n")
	if result.LatencyImprovement["p95"] < 0 {
		fmt.Printf("  ✓ In-memory P95 latency is %.1f%% better (no disk round-trip)\n", -result.LatencyImprovement["p95"])
	}
	if result.SQLite.Latency.P95 < 50*time.Millisecond {
		fmt.Printf("  ✓ SQLite P95 stays under 50ms, fast enough for interactive use\n")
	}
	if result.SQLite.ErrorCount == 0 && result.Memory.ErrorCount == 0 {
		fmt.Printf("  ✓ Zero read errors in both modes\n")
	}
	fmt.Printf("\n")

	fmt.Printf("%s\n\n", separator)
}

// printLatencyRow prints a single row in the latency comparison table.
func printLatencyRow(metric string, sqliteVal, memoryVal time.Duration, improvement float64) {
	improvementStr := fmt.Sprintf("%s%.1f%%", formatSign(improvement), improvement)
	if improvement > 0 {
		improvementStr += " ✓"
	}
	fmt.Printf("%-10s | %-12s | %-12s | %-15s\n",
		metric,
		FormatDuration(sqliteVal),
		FormatDuration(memoryVal),
		improvementStr)
}

// formatSign returns a + or - sign for display.
func formatSign(value float64) string {
	if value > 0 {
		return "+"
	}
	return ""
}
