package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/todosync/todosync/internal/benchmark"
)

var (
	benchReaders int
	benchTasks   int
	benchReads   int
	benchMode    string
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Benchmark local store performance",
	Long: `Measure local task store read performance under concurrent readers.

By default both modes are benchmarked and compared:
  sqlite — the durable embedded database the app normally uses
  memory — the volatile fallback used when the database is unavailable

Examples:
  tds benchmark
  tds benchmark --readers 100 --tasks 5000
  tds benchmark --mode sqlite`,
	Run: func(cmd *cobra.Command, args []string) {
		config := benchmark.DefaultConfig()
		if benchReaders > 0 {
			config.NumReaders = benchReaders
		}
		if benchTasks > 0 {
			config.NumTasks = benchTasks
		}
		if benchReads > 0 {
			config.ReadsPerReader = benchReads
		}

		workDir, err := os.MkdirTemp("", "tds-bench-*")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating work directory: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(workDir)

		if benchMode == "" {
			result, err := benchmark.Compare(config, workDir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			benchmark.PrintComparison(result)
			return
		}

		config.Mode = benchMode
		if benchMode == benchmark.ModeSQLite {
			config.DBPath = filepath.Join(workDir, "bench.db")
		}
		result, err := benchmark.Run(config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		benchmark.PrintResult(*result)
	},
}

func init() {
	benchmarkCmd.Flags().IntVar(&benchReaders, "readers", 0, "Number of concurrent readers (default 50)")
	benchmarkCmd.Flags().IntVar(&benchTasks, "tasks", 0, "Number of tasks to seed (default 1000)")
	benchmarkCmd.Flags().IntVar(&benchReads, "reads", 0, "Reads per reader (default 10)")
	benchmarkCmd.Flags().StringVar(&benchMode, "mode", "", "Benchmark a single mode (sqlite|memory) instead of comparing")
	rootCmd.AddCommand(benchmarkCmd)
}
