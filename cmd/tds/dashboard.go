package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/todosync/todosync/internal/dashboard"
	"github.com/todosync/todosync/internal/ui"
)

var dashboardPort int

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve a real-time WebSocket dashboard",
	Long: `Serve sync state, queue statistics, and connectivity over WebSocket
and a JSON /status endpoint.

Connect a WebSocket client to ws://localhost:<port>/ws, or fetch
http://localhost:<port>/status for a one-shot snapshot.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := NewApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		port := dashboardPort
		if port == 0 {
			port = cfg.Dashboard.Port
		}

		server := dashboard.NewServer(&dashboard.Config{Port: port, Logger: logger})

		// The sync feed needs a remote; run without it when offline-only.
		if s, err := app.Syncer(); err == nil {
			server.Attach(s, app.queue, app.monitor)
		} else {
			logger.Printf("Dashboard running without sync feed: %v", err)
			server.Attach(nil, app.queue, app.monitor)
		}

		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Dashboard listening on %s\n", ui.Good.Render("▶"), server.GetAddr())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping dashboard: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	dashboardCmd.Flags().IntVar(&dashboardPort, "port", 0, "Port to listen on (default from config)")
	rootCmd.AddCommand(dashboardCmd)
}
