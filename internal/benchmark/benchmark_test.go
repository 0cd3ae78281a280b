package benchmark

import (
	"path/filepath"
	"testing"
	"time"
)

func smallConfig() Config {
	return Config{
		NumReaders:     4,
		NumTasks:       20,
		ReadsPerReader: 3,
		Mode:           ModeMemory,
	}
}

func TestRunMemoryMode(t *testing.T) {
	result, err := Run(smallConfig())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.Success {
		t.Errorf("expected success, got %d errors", result.ErrorCount)
	}
	if got, want := result.Throughput.TotalReads, 4*3; got != want {
		t.Errorf("TotalReads = %d, want %d", got, want)
	}
	if result.Latency.P50 <= 0 {
		t.Errorf("P50 = %v, want > 0", result.Latency.P50)
	}
	if result.Latency.Min > result.Latency.Max {
		t.Errorf("Min %v > Max %v", result.Latency.Min, result.Latency.Max)
	}
}

func TestRunSQLiteMode(t *testing.T) {
	config := smallConfig()
	config.Mode = ModeSQLite
	config.DBPath = filepath.Join(t.TempDir(), "bench.db")

	result, err := Run(config)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got %d errors", result.ErrorCount)
	}
	if result.SeedDuration <= 0 {
		t.Errorf("SeedDuration = %v, want > 0", result.SeedDuration)
	}
}

func TestRunSQLiteRequiresPath(t *testing.T) {
	config := smallConfig()
	config.Mode = ModeSQLite
	config.DBPath = ""

	if _, err := Run(config); err == nil {
		t.Error("expected error for sqlite mode without a path")
	}
}

func TestRunUnknownMode(t *testing.T) {
	config := smallConfig()
	config.Mode = "jsonl"

	if _, err := Run(config); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestComputeStats(t *testing.T) {
	durations := []time.Duration{
		5 * time.Millisecond,
		1 * time.Millisecond,
		3 * time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
	}

	stats := ComputeStats(durations)

	if stats.Min != 1*time.Millisecond {
		t.Errorf("Min = %v, want 1ms", stats.Min)
	}
	if stats.Max != 5*time.Millisecond {
		t.Errorf("Max = %v, want 5ms", stats.Max)
	}
	if stats.Mean != 3*time.Millisecond {
		t.Errorf("Mean = %v, want 3ms", stats.Mean)
	}
	if stats.P50 != 3*time.Millisecond {
		t.Errorf("P50 = %v, want 3ms", stats.P50)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil)
	if stats.Min != 0 || stats.Max != 0 {
		t.Errorf("expected zero stats for empty input, got %+v", stats)
	}
}

func TestCompare(t *testing.T) {
	result, err := Compare(smallConfig(), t.TempDir())
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if result.SQLite.Config.Mode != ModeSQLite {
		t.Errorf("sqlite result mode = %q", result.SQLite.Config.Mode)
	}
	if result.Memory.Config.Mode != ModeMemory {
		t.Errorf("memory result mode = %q", result.Memory.Config.Mode)
	}
	if len(result.LatencyImprovement) != 6 {
		t.Errorf("expected 6 latency metrics, got %d", len(result.LatencyImprovement))
	}
	switch result.OverallWinner {
	case "sqlite", "memory", "tie":
	default:
		t.Errorf("unexpected winner %q", result.OverallWinner)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  string
	}{
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.bytes); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Nanosecond, "500ns"},
		{1500 * time.Nanosecond, "1.50µs"},
		{2500 * time.Microsecond, "2.50ms"},
		{1500 * time.Millisecond, "1.50s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
