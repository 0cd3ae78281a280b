package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/todosync/todosync/internal/task"
	"github.com/todosync/todosync/internal/ui"
)

// exportFile is the YAML document written by export and read by import.
type exportFile struct {
	ExportedAt time.Time   `yaml:"exported_at"`
	Tasks      []task.Task `yaml:"tasks"`
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export tasks to YAML",
	Long: `Write all local tasks as YAML, to a file or stdout.

Examples:
  tds export backup.yaml
  tds export > backup.yaml`,
	Args: cobra.MaximumNArgs(1),
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
		task.SortForDisplay(tasks)

		doc := exportFile{ExportedAt: time.Now(), Tasks: tasks}
		data, err := yaml.Marshal(doc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding tasks: %v\n", err)
			os.Exit(1)
		}

		if len(args) == 0 {
			fmt.Print(string(data))
			return
		}
		if err := os.WriteFile(args[0], data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", args[0], err)
			os.Exit(1)
		}
		fmt.Printf("%s Exported %d tasks to %s\n", ui.Good.Render("✓"), len(tasks), args[0])
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import tasks from YAML",
	Long: `Read tasks from a YAML export and add them to the local store.

Imported tasks get fresh local identities so they upload as new tasks
on the next sync; invalid entries are skipped with a warning.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", args[0], err)
			os.Exit(1)
		}

		var doc exportFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", args[0], err)
			os.Exit(1)
		}

		app, err := NewApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		imported, skipped := 0, 0
		for _, t := range doc.Tasks {
			t.ID = ""
			t.SyncStatus = ""
			t.Order = 0
			t.SetDefaults()
			if err := t.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: skipping %q: %v\n", t.Title, err)
				skipped++
				continue
			}
			if _, err := app.local.Add(t); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to add %q: %v\n", t.Title, err)
				skipped++
				continue
			}
			imported++
		}

		fmt.Printf("%s Imported %d tasks", ui.Good.Render("✓"), imported)
		if skipped > 0 {
			fmt.Printf(" (%d skipped)", skipped)
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
