package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/todosync/todosync/internal/conflict"
	"github.com/todosync/todosync/internal/daemon"
	"github.com/todosync/todosync/internal/store"
	"github.com/todosync/todosync/internal/syncer"
	"github.com/todosync/todosync/internal/task"
	"github.com/todosync/todosync/internal/ui"
)

var resolveChoice string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize tasks with the cloud",
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Run a sync pass",
	Long: `Drain the offline action queue, then run one reconciliation pass:
upload local tasks, detect conflicts, and auto-resolve what the policy
allows.`,
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

		info := app.monitor.GetNetworkInfo()
		if !info.CanSync {
			fmt.Printf("%s %s\n", ui.Warn.Render("⚠"), info.Message)
			os.Exit(1)
		}

		s, err := app.Syncer()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		if n := app.queue.Len(); n > 0 {
			fmt.Printf("Draining %d queued actions...\n", n)
			if err := app.queue.Process(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error draining queue: %v\n", err)
				os.Exit(1)
			}
		}

		result, err := s.StartSync(ctx, uid, syncer.Options{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		verdict := syncer.ValidateResult(result)
		if result.Success {
			fmt.Printf("%s %s\n", ui.Good.Render("✓"), verdict.Message)
		} else {
			fmt.Printf("%s %s\n", ui.Bad.Render("✗"), verdict.Message)
		}
		if result.AutoResolvedCount > 0 {
			fmt.Printf("   Auto-resolved %d conflicts\n", result.AutoResolvedCount)
		}
		if len(result.Conflicts) > 0 {
			fmt.Printf("\n%s %d conflicts need a decision:\n", ui.Warn.Render("⚠"), len(result.Conflicts))
			for _, c := range result.Conflicts {
				fmt.Printf("   %s\n", conflict.Describe(c))
				fmt.Printf("     local: %q  cloud: %q\n", c.Local.Title, c.Cloud.Title)
			}
			fmt.Println("\nRun 'tds sync resolve' to decide.")
		}
		if verdict.ShouldRetry {
			os.Exit(1)
		}
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync, queue, and network status",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := NewApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		fmt.Printf("\n%s\n\n", ui.Heading("Sync Status"))

		info := app.monitor.GetNetworkInfo()
		fmt.Println(ui.LabelValue("Network", app.monitor.GetConnectionSummary()))
		fmt.Println(ui.LabelValue("Quality", ui.QualityText(string(info.ConnectionQuality))))
		fmt.Println(ui.LabelValue("Verdict", info.Message))

		stats := app.queue.Stats()
		fmt.Println(ui.LabelValue("Queued actions", stats.Total))

		usage, err := app.local.Usage()
		if err == nil {
			fmt.Println(ui.LabelValue("Local tasks", fmt.Sprintf("%d (%d slots free)", usage.Used, usage.Available)))
		}

		if state, err := daemon.ReadRunState(cfg.DataDir); err == nil {
			fmt.Println(ui.LabelValue("Daemon syncs", state.SyncCount))
			if !state.LastSyncAt.IsZero() {
				fmt.Println(ui.LabelValue("Last sync", state.LastSyncAt.Format("2006-01-02 15:04:05")))
				fmt.Println(ui.LabelValue("Last result", state.LastMessage))
			}
		}
		fmt.Println()
	},
}

var syncResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve sync conflicts",
	Long: `Run a sync pass and decide each unresolved conflict.

Interactive by default. Use --resolution to apply one decision to every
conflict without prompting (keep_local, keep_cloud, or merge).`,
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

		ctx := context.Background()
		result, err := s.StartSync(ctx, uid, syncer.Options{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(result.Conflicts) == 0 {
			fmt.Printf("%s No conflicts to resolve\n", ui.Good.Render("✓"))
			return
		}

		if resolveChoice == "" && !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintf(os.Stderr, "Error: not a terminal; use --resolution keep_local|keep_cloud|merge\n")
			os.Exit(1)
		}

		for _, c := range result.Conflicts {
			res, err := chooseResolution(c)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if res == "" {
				fmt.Printf("Skipped %q\n", c.Local.Title)
				continue
			}

			if err := applyResolution(ctx, app, uid, c, res); err != nil {
				fmt.Fprintf(os.Stderr, "Error applying resolution: %v\n", err)
				os.Exit(1)
			}
			if _, err := s.ResolveConflict(c.ID, res); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s %q resolved (%s)\n", ui.Good.Render("✓"), c.Local.Title, res)
		}
	},
}

// chooseResolution asks the user, unless --resolution decided already.
func chooseResolution(c conflict.TaskConflict) (conflict.Resolution, error) {
	switch resolveChoice {
	case "keep_local":
		return conflict.KeepLocal, nil
	case "keep_cloud":
		return conflict.KeepCloud, nil
	case "merge":
		return conflict.Merge, nil
	case "":
	default:
		return "", fmt.Errorf("unknown resolution %q", resolveChoice)
	}

	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(conflict.Describe(c)).
			Description(fmt.Sprintf("local: %q\ncloud: %q", c.Local.Title, c.Cloud.Title)).
			Options(
				huh.NewOption("Keep local version", "keep_local"),
				huh.NewOption("Keep cloud version", "keep_cloud"),
				huh.NewOption("Merge both", "merge"),
				huh.NewOption("Skip", ""),
			).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		return "", err
	}
	return conflict.Resolution(choice), nil
}

// applyResolution writes the decision through to the stores.
func applyResolution(ctx context.Context, app *App, uid string, c conflict.TaskConflict, res conflict.Resolution) error {
	remote, err := app.Remote()
	if err != nil {
		return err
	}

	switch res {
	case conflict.KeepCloud:
		// The cloud copy stands; drop the local contender.
		_, err := app.local.Delete(c.Local.ID)
		return err

	case conflict.KeepLocal:
		// Overwrite the cloud copy with the local fields.
		_, err := remote.Update(ctx, uid, c.Cloud.ID, patchFromTask(c.Local))
		if err != nil {
			return err
		}
		_, err = app.local.Delete(c.Local.ID)
		return err

	case conflict.Merge:
		merged := conflict.SmartMerge(c.Local, c.Cloud)
		_, err := remote.Update(ctx, uid, c.Cloud.ID, patchFromTask(merged))
		if err != nil {
			return err
		}
		_, err = app.local.Delete(c.Local.ID)
		return err

	default:
		return fmt.Errorf("unknown resolution %q", res)
	}
}

func patchFromTask(t task.Task) store.Patch {
	return store.Patch{
		Title:     &t.Title,
		Notes:     &t.Notes,
		Completed: &t.Completed,
		DueDate:   &t.DueDate,
	}
}

func init() {
	syncResolveCmd.Flags().StringVar(&resolveChoice, "resolution", "", "Apply one resolution to all conflicts (keep_local, keep_cloud, merge)")

	syncCmd.AddCommand(syncNowCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncResolveCmd)
	rootCmd.AddCommand(syncCmd)
}
