package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/todosync/todosync/internal/config"
	"github.com/todosync/todosync/internal/ui"
)

var (
	configPath string
	dataDir    string
	userID     string
	verbose    bool
	noColor    bool

	cfg    *config.Config
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tds",
	Short: "An offline-first todo list with cloud sync",
	Long: `tds is a command-line todo application that keeps working offline.

Tasks are stored locally and synchronized to a libSQL database when a
usable connection is available. Mutations made while offline are queued
and replayed automatically; conflicting edits are detected and resolved
by policy or interactively.

Examples:
  tds add "Buy milk" --due tomorrow
  tds list
  tds done 1
  tds sync now
  tds sync resolve
  tds daemon`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}

		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if userID != "" {
			cfg.UserID = userID
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		logger = newLogger()

		if noColor || !term.IsTerminal(int(os.Stdout.Fd())) {
			ui.NoColor()
		}
		return nil
	},
}

// newLogger writes to the rotating log file, and to stderr too when
// --verbose is set.
func newLogger() *log.Logger {
	rotating := &lumberjack.Logger{
		Filename:   cfg.LogPath(),
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
	}

	var w io.Writer = rotating
	if verbose {
		w = io.MultiWriter(os.Stderr, rotating)
	}
	return log.New(w, "[tds] ", log.LstdFlags)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override the data directory")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "Override the configured user id")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr as well as the log file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
