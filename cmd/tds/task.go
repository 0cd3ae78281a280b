package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/todosync/todosync/internal/queue"
	"github.com/todosync/todosync/internal/store"
	"github.com/todosync/todosync/internal/task"
	"github.com/todosync/todosync/internal/ui"
)

var (
	addNotes string
	addDue   string

	editTitle string
	editNotes string
	editDue   string
)

// parseDue accepts YYYY-MM-DD directly, or natural language such as
// "tomorrow" and "next friday".
func parseDue(s string) (string, error) {
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return s, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to parse due date %q: %w", s, err)
	}
	if r == nil {
		return "", fmt.Errorf("could not understand due date %q (try YYYY-MM-DD)", s)
	}
	return r.Time.Format("2006-01-02"), nil
}

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a new task",
	Long: `Add a task to the local store. It syncs to the cloud on the next
sync pass.

Examples:
  tds add "Buy milk"
  tds add "File taxes" --due "next friday" --notes "use last year's folder"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := NewApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		t := task.Task{Title: args[0], Notes: addNotes}
		if addDue != "" {
			due, err := parseDue(addDue)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			t.DueDate = due
		}

		id, err := app.local.Add(t)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error adding task: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Added %q", ui.Good.Render("✓"), t.Title)
		if t.DueDate != "" {
			fmt.Printf(" (due %s)", t.DueDate)
		}
		fmt.Printf("\n   %s\n", ui.Muted.Render(id))
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := NewApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		tasks, err := app.local.Get()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading tasks: %v\n", err)
			os.Exit(1)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks. Add one with: tds add \"...\"")
			return
		}

		task.SortForDisplay(tasks)
		for i, t := range tasks {
			line := fmt.Sprintf("%3d. %s %s", i+1, ui.Checkbox(t.Completed), t.Title)
			if t.DueDate != "" {
				line += ui.Warn.Render(" (due " + t.DueDate + ")")
			}
			if t.SyncStatus != task.StatusSynced {
				line += ui.Muted.Render(" [" + string(t.SyncStatus) + "]")
			}
			fmt.Println(line)
			if t.Notes != "" {
				fmt.Printf("     %s\n", ui.Muted.Render(t.Notes))
			}
		}

		if n := app.queue.Len(); n > 0 {
			fmt.Printf("\n%s %d queued actions waiting for sync\n", ui.Warn.Render("⏳"), n)
		}
	},
}

// findTask resolves a list position (as shown by `tds list`) or a task
// id to the task itself.
func findTask(local *store.Local, arg string) (task.Task, error) {
	tasks, err := local.Get()
	if err != nil {
		return task.Task{}, fmt.Errorf("failed to load tasks: %w", err)
	}
	task.SortForDisplay(tasks)

	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(tasks) {
			return task.Task{}, fmt.Errorf("no task at position %d", n)
		}
		return tasks[n-1], nil
	}

	for _, t := range tasks {
		if t.ID == arg || strings.HasPrefix(t.ID, arg) {
			return t, nil
		}
	}
	return task.Task{}, fmt.Errorf("no task matches %q", arg)
}

var doneCmd = &cobra.Command{
	Use:   "done <task>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := NewApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		t, err := findTask(app.local, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		completed := true
		if _, err := app.local.Update(t.ID, store.Patch{Completed: &completed}); err != nil {
			fmt.Fprintf(os.Stderr, "Error updating task: %v\n", err)
			os.Exit(1)
		}
		queueRemoteUpdate(app, t, queue.UpdatePayload{Completed: &completed})

		fmt.Printf("%s Completed %q\n", ui.Good.Render("✓"), t.Title)
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <task>",
	Aliases: []string{"delete"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := NewApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		t, err := findTask(app.local, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if _, err := app.local.Delete(t.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting task: %v\n", err)
			os.Exit(1)
		}

		// Synced tasks also need the remote copy removed, or the next
		// pull resurrects them.
		if !task.HasLocalID(t.ID) {
			if uid, err := app.RequireUser(); err == nil {
				if _, err := app.queue.EnqueueDelete(uid, t.ID); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to queue remote delete: %v\n", err)
				}
			}
		}

		fmt.Printf("%s Deleted %q\n", ui.Good.Render("✓"), t.Title)
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <task>",
	Short: "Edit a task's title, notes, or due date",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if editTitle == "" && editNotes == "" && editDue == "" {
			fmt.Fprintf(os.Stderr, "Error: nothing to change (use --title, --notes, or --due)\n")
			os.Exit(1)
		}

		app, err := NewApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		t, err := findTask(app.local, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var patch store.Patch
		var remote queue.UpdatePayload
		if editTitle != "" {
			patch.Title = &editTitle
			remote.Title = &editTitle
		}
		if editNotes != "" {
			patch.Notes = &editNotes
			remote.Notes = &editNotes
		}
		if editDue != "" {
			due, err := parseDue(editDue)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			patch.DueDate = &due
			remote.DueDate = &due
		}

		if _, err := app.local.Update(t.ID, patch); err != nil {
			fmt.Fprintf(os.Stderr, "Error updating task: %v\n", err)
			os.Exit(1)
		}
		queueRemoteUpdate(app, t, remote)

		fmt.Printf("%s Updated %q\n", ui.Good.Render("✓"), t.Title)
	},
}

var reorderCmd = &cobra.Command{
	Use:   "reorder <task> <position>",
	Short: "Move a task to a new position in the list",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := NewApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		pos, err := strconv.Atoi(args[1])
		if err != nil || pos < 1 {
			fmt.Fprintf(os.Stderr, "Error: position must be a number >= 1\n")
			os.Exit(1)
		}

		target, err := findTask(app.local, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		tasks, err := app.local.Get()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading tasks: %v\n", err)
			os.Exit(1)
		}
		task.SortForDisplay(tasks)

		rest := make([]task.Task, 0, len(tasks))
		for _, t := range tasks {
			if t.ID != target.ID {
				rest = append(rest, t)
			}
		}
		if pos > len(rest)+1 {
			pos = len(rest) + 1
		}
		reordered := make([]task.Task, 0, len(tasks))
		reordered = append(reordered, rest[:pos-1]...)
		reordered = append(reordered, target)
		reordered = append(reordered, rest[pos-1:]...)

		if err := app.local.Save(task.Renumber(reordered)); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving order: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Moved %q to position %d\n", ui.Good.Render("✓"), target.Title, pos)
	},
}

// queueRemoteUpdate enqueues the remote half of a local edit, for tasks
// that already exist remotely. Locally originated tasks are covered by
// the next sync pass uploading their current state.
func queueRemoteUpdate(app *App, t task.Task, p queue.UpdatePayload) {
	if task.HasLocalID(t.ID) {
		return
	}
	uid, err := app.RequireUser()
	if err != nil {
		return
	}
	if _, err := app.queue.EnqueueUpdate(uid, t.ID, p); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to queue remote update: %v\n", err)
	}
}

func init() {
	addCmd.Flags().StringVar(&addNotes, "notes", "", "Notes for the task")
	addCmd.Flags().StringVar(&addDue, "due", "", "Due date (YYYY-MM-DD or natural language)")

	editCmd.Flags().StringVar(&editTitle, "title", "", "New title")
	editCmd.Flags().StringVar(&editNotes, "notes", "", "New notes")
	editCmd.Flags().StringVar(&editDue, "due", "", "New due date")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(reorderCmd)
}
