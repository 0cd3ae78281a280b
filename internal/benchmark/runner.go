package benchmark

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/todosync/todosync/internal/store"
	"github.com/todosync/todosync/internal/task"
)

// Run seeds a local store per the config, then measures full-list reads
// from NumReaders concurrent goroutines.
func Run(config Config) (*Result, error) {
	local, err := openStore(config)
	if err != nil {
		return nil, err
	}
	defer local.Close()

	memBefore := GetMemoryStats()

	seedStart := time.Now()
	if err := seed(local, config.NumTasks); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}
	seedDuration := time.Since(seedStart)

	totalReads := config.NumReaders * config.ReadsPerReader
	durations := make([]time.Duration, 0, totalReads)
	errorCount := 0

	var mu sync.Mutex
	var wg sync.WaitGroup

	readStart := time.Now()
	for i := 0; i < config.NumReaders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < config.ReadsPerReader; j++ {
				start := time.Now()
				_, err := local.Get()
				elapsed := time.Since(start)

				mu.Lock()
				if err != nil {
					errorCount++
				} else {
					durations = append(durations, elapsed)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	totalDuration := time.Since(readStart)

	memAfter := GetMemoryStats()

	result := &Result{
		Config:        config,
		Latency:       ComputeStats(durations),
		Resources:     CompareMemoryStats(memBefore, memAfter),
		SeedDuration:  seedDuration,
		TotalDuration: totalDuration,
		ErrorCount:    errorCount,
		ErrorRate:     float64(errorCount) / float64(totalReads),
		Success:       errorCount == 0,
	}
	if totalDuration > 0 {
		result.Throughput = ThroughputMetrics{
			ReadsPerSecond: float64(len(durations)) / totalDuration.Seconds(),
			TotalReads:     len(durations),
		}
	}
	return result, nil
}

func openStore(config Config) (*store.Local, error) {
	cfg := &store.LocalConfig{
		MaxTasks: config.NumTasks,
		Logger:   log.New(io.Discard, "", 0),
	}
	switch config.Mode {
	case ModeMemory:
		return store.NewMemoryLocal(cfg), nil
	case ModeSQLite:
		if config.DBPath == "" {
			return nil, fmt.Errorf("sqlite mode requires a database path")
		}
		local, err := store.OpenLocal(config.DBPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if local.InMemory() {
			_ = local.Close()
			return nil, fmt.Errorf("database at %s fell back to memory", config.DBPath)
		}
		return local, nil
	default:
		return nil, fmt.Errorf("unknown benchmark mode %q", config.Mode)
	}
}

func seed(local *store.Local, n int) error {
	tasks := make([]task.Task, n)
	now := task.Now()
	for i := range tasks {
		tasks[i] = task.Task{
			ID:         fmt.Sprintf("bench-%06d", i),
			Title:      fmt.Sprintf("Benchmark task %d", i),
			Notes:      "Seeded for performance measurement",
			Completed:  i%3 == 0,
			CreatedAt:  now - int64(i),
			Order:      float64(i+1) * task.OrderStep,
			SyncStatus: task.StatusSynced,
		}
	}
	return local.Save(tasks)
}
