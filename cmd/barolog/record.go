package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/barolog/barolog/internal/recorder"
	"github.com/barolog/barolog/internal/reading"
)

var recordCmd = &cobra.Command{
	Use:     "record",
	GroupID: "record",
	Short:   "Record readings from the configured sensor",
	Long: `Record one pressure reading per interval into the local store.

Readings carry this device's identity and, while a user is logged in, the
user's id. Every sync_every readings a background sync cycle is started.
With --once a single reading is recorded and printed.

Example usage:
  barolog record                 # Record until Ctrl+C
  barolog record --once          # Record one reading
  barolog record --no-sync       # Record without syncing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")
		noSync, _ := cmd.Flags().GetBool("no-sync")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := newRecorder(ctx, a, !noSync, nil)
		if err != nil {
			return err
		}

		if once {
			r, err := rec.RecordOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Recorded %.1f hPa at %s (%s)\n", r.Value, r.Time().Format(timeLayout), r.DeviceName)
			return nil
		}

		fmt.Println("Recording. Press Ctrl+C to stop...")
		return rec.Run(ctx)
	},
}

// newRecorder builds a recorder over the app's store and configured source.
// When withSync is set the sync engine is opened and triggered.
func newRecorder(ctx context.Context, a *app, withSync bool, onRecord func(*reading.Reading)) (*recorder.Recorder, error) {
	source, err := a.openSource()
	if err != nil {
		return nil, err
	}

	var trigger recorder.Trigger
	if withSync {
		if err := a.openSync(ctx); err != nil {
			return nil, err
		}
		trigger = a.engine
	}

	return recorder.New(a.store, source, a.identity, trigger, &recorder.Config{
		Interval:       cfg.Recorder.Interval,
		SyncEvery:      cfg.Recorder.SyncEvery,
		RetentionHours: cfg.Recorder.RetentionHours,
		UserID:         a.currentUser,
		OnRecord:       onRecord,
		Logger:         a.logger("recorder"),
	})
}

func init() {
	recordCmd.Flags().Bool("once", false, "Record a single reading and exit")
	recordCmd.Flags().Bool("no-sync", false, "Do not trigger background syncs")

	rootCmd.AddCommand(recordCmd)
}
