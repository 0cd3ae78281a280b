package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/todosync/todosync/internal/daemon"
	"github.com/todosync/todosync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the auto-sync daemon (foreground)",
	Long: `Run the background sync daemon in foreground mode.

The daemon will:
  1. Watch the data directory for task and queue changes
  2. React to connectivity transitions
  3. Drain the offline queue and sync when the connection allows
  4. Run a periodic sync pass as a safety net

Press Ctrl+C to stop. For production use, run it under a process
manager.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := NewApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		uid, err := app.RequireUser()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		s, err := app.Syncer()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		dcfg := daemon.DefaultConfig()
		dcfg.SyncInterval = cfg.Sync.Interval
		dcfg.Logger = logger

		d, err := daemon.New(uid, cfg.DataDir, s, app.queue, app.monitor, dcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Starting sync daemon...\n", ui.Good.Render("▶"))
		fmt.Printf("   Data dir: %s\n", cfg.DataDir)
		fmt.Printf("   Interval: %s\n", dcfg.SyncInterval)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
