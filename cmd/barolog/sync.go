package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/barolog/barolog/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "account",
	Short:   "Run one sync cycle with the cloud replica",
	Long: `Upload unsynced local readings, then download and merge every reading of
the logged-in user from the cloud replica.

Upload runs before download so this device's readings are never overwritten
by stale cloud copies. Expected cloud errors (missing data, permissions) are
logged and reported as a successful cycle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		user, ok := a.session.CurrentUser()
		if !ok {
			return fmt.Errorf("not logged in (run 'barolog login')")
		}
		if err := a.openSync(ctx); err != nil {
			return err
		}

		res, err := a.engine.Sync(ctx, user.ID)
		printSyncResult(res)
		if errors.Is(err, sync.ErrUnauthorized) {
			return fmt.Errorf("sync rejected: %w", err)
		}
		return err
	},
}

func printSyncResult(res sync.Result) {
	if res.Skipped {
		fmt.Println(warnStyle.Render("Sync already in progress, skipped"))
		return
	}

	fmt.Printf("%s %s\n", headerStyle.Render("Sync"), mutedStyle.Render(res.CycleID))
	fmt.Printf("  uploaded:   %d\n", res.Uploaded)
	fmt.Printf("  downloaded: %d (%d new, %d updated)\n", res.Downloaded, res.Inserted, res.Updated)
	if res.SkippedDocs > 0 {
		fmt.Printf("  skipped:    %s\n", warnStyle.Render(fmt.Sprintf("%d invalid documents", res.SkippedDocs)))
	}
	fmt.Printf("  duration:   %v\n", res.Duration.Round(time.Millisecond))

	for _, phase := range []struct {
		name string
		err  error
	}{{"upload", res.UploadErr}, {"download", res.DownloadErr}} {
		if phase.err != nil {
			fmt.Printf("  %s: %s\n", phase.name, errStyle.Render(sync.Classify(phase.err).String()+": "+phase.err.Error()))
		}
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
