package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/barolog/barolog/internal/auth"
	"github.com/barolog/barolog/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "record",
	Short:   "Start the local dashboard server",
	Long: `Start the dashboard: an HTTP API over the local store and a WebSocket feed
of live updates. Unless --no-record is given the recorder runs in-process.

WebSocket messages include:
- sync_complete: A sync cycle finished
- stats: Pressure statistics for the selected devices
- devices: Device list or selection changed

HTTP routes:
  GET  /api/readings?since=24&device=ID
  GET  /api/stats?since=24
  GET  /api/devices
  POST /api/devices/{id}/toggle
  POST /api/sync
  GET  /health

A login from another terminal (barolog login) is picked up and triggers a
sync cycle.

Example usage:
  barolog dashboard                   # Start on the configured port
  barolog dashboard --port 9000       # Start on a custom port`,
	RunE: func(cmd *cobra.Command, args []string) error {
		noRecord, _ := cmd.Flags().GetBool("no-record")
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.openSync(ctx); err != nil {
			return err
		}

		server := dashboard.NewServer(&dashboard.Config{
			Host:           cfg.Dashboard.Host,
			Port:           port,
			AllowedOrigins: cfg.Dashboard.AllowedOrigins,
			Logger:         a.logger("dashboard"),
		})
		handler := dashboard.NewHandler(server, a.store, a.registry, cfg.Dashboard.SinceHours, a.logger("dashboard"))
		api := dashboard.NewAPI(a.store, a.registry, a.engine, a.session, handler, a.logger("api"))
		api.DefaultSinceHours = cfg.Dashboard.SinceHours
		server.Mount(api)

		a.engine.Subscribe(handler.OnSyncComplete)

		watcher, err := auth.NewWatcher(a.session, auth.WatcherConfig{
			OnLogin: func(user auth.User) {
				a.logger("auth").Printf("Logged in as %s, syncing", user.ID)
				a.engine.Trigger(ctx, user.ID)
			},
			OnLogout: func() {
				a.logger("auth").Println("Logged out")
			},
			Logger: a.logger("auth"),
		})
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()

		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}

		recDone := make(chan error, 1)
		if noRecord {
			close(recDone)
		} else {
			rec, err := newRecorder(ctx, a, true, handler.OnRecord)
			if err != nil {
				_ = server.Stop()
				return err
			}
			go func() { recDone <- rec.Run(ctx) }()
		}

		if user, ok := a.session.CurrentUser(); ok {
			a.engine.Trigger(ctx, user.ID)
		}

		fmt.Printf("Dashboard server started on http://%s\n", server.GetAddr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.GetAddr())
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		recErr := <-recDone
		if err := server.Stop(); err != nil {
			return fmt.Errorf("error during shutdown: %w", err)
		}
		fmt.Println("Dashboard server stopped")
		return recErr
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8080, "Port to listen on (default: dashboard.port)")
	dashboardCmd.Flags().Bool("no-record", false, "Serve the store without recording")

	rootCmd.AddCommand(dashboardCmd)
}
