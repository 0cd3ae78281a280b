package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/todosync/todosync/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the offline action queue",
}

var queueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List queued actions",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := NewApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		actions := app.queue.Actions()
		if len(actions) == 0 {
			fmt.Println("Queue is empty")
			return
		}

		fmt.Printf("\n%s\n\n", ui.Heading(fmt.Sprintf("%d queued actions", len(actions))))
		for i, a := range actions {
			desc := a.Metadata.Description
			if desc == "" {
				desc = string(a.Type)
			}
			line := fmt.Sprintf("%3d. [%s] %s", i+1, ui.PriorityText(string(a.Priority)), desc)
			if a.RetryCount > 0 {
				line += ui.Warn.Render(fmt.Sprintf(" (retry %d/%d)", a.RetryCount, a.MaxRetries))
			}
			fmt.Println(line)
			fmt.Printf("     %s\n", ui.Muted.Render(fmt.Sprintf("%s, queued %s",
				a.ID, time.UnixMilli(a.Timestamp).Format("15:04:05"))))
		}
		fmt.Println()
	},
}

var queueProcessCmd = &cobra.Command{
	Use:   "process [action-id]",
	Short: "Replay queued actions against the remote store",
	Long: `Drain the queue, or replay one specific action by id.

Each action is attempted up to its retry limit; actions that keep
failing are dropped and logged.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := NewApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		info := app.monitor.GetNetworkInfo()
		if !info.CanSync {
			fmt.Printf("%s %s\n", ui.Warn.Render("⚠"), info.Message)
			os.Exit(1)
		}

		// Registers the queue processor.
		if _, err := app.Syncer(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		before := app.queue.Stats()
		ctx := context.Background()

		if len(args) == 1 {
			err = app.queue.ProcessAction(ctx, args[0])
		} else {
			err = app.queue.Process(ctx)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error processing queue: %v\n", err)
			os.Exit(1)
		}

		after := app.queue.Stats()
		fmt.Printf("%s Processed %d actions (%d failed permanently, %d remain)\n",
			ui.Good.Render("✓"),
			after.Completed-before.Completed,
			after.Failed-before.Failed,
			after.Total)
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard all queued actions",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := NewApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		n := app.queue.Len()
		app.queue.Clear()
		fmt.Printf("%s Discarded %d queued actions\n", ui.Good.Render("✓"), n)
	},
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := NewApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		stats := app.queue.Stats()
		fmt.Printf("\n%s\n\n", ui.Heading("Queue Statistics"))
		fmt.Println(ui.LabelValue("Total", stats.Total))
		fmt.Println(ui.LabelValue("Pending", stats.Pending))
		fmt.Println(ui.LabelValue("Processing", stats.Processing))
		fmt.Println(ui.LabelValue("Completed this session", stats.Completed))
		fmt.Println(ui.LabelValue("Failed this session", stats.Failed))

		if len(stats.ByType) > 0 {
			fmt.Println()
			for typ, n := range stats.ByType {
				fmt.Println(ui.LabelValue(string(typ), n))
			}
		}
		fmt.Println()
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueProcessCmd)
	queueCmd.AddCommand(queueClearCmd)
	queueCmd.AddCommand(queueStatsCmd)
	rootCmd.AddCommand(queueCmd)
}
