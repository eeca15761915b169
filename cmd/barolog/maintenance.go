package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/barolog/barolog/internal/localstore"
)

var clearCmd = &cobra.Command{
	Use:     "clear",
	GroupID: "advanced",
	Short:   "Delete every local reading",
	Long: `Delete every reading from the local store. Readings already uploaded are
restored by the next sync; unsynced readings are lost.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("refusing to clear without --yes")
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.db.ClearAll(ctx); err != nil {
			return err
		}
		a.registry.Reset()
		a.registry.Refresh(ctx)

		fmt.Println("Local store cleared")
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:     "purge",
	GroupID: "advanced",
	Short:   "Delete readings older than a time window",
	Long: `Delete local readings older than --older-than. The value accepts the same
forms as --since: hours, a duration, or a phrase like "last week".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("older-than")
		hours, err := parseSince(raw, time.Now())
		if err != nil {
			return err
		}
		if hours <= 0 {
			return fmt.Errorf("--older-than must be a positive window")
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.db.PurgeOlderThan(ctx, hours)
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d readings older than %dh\n", n, hours)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "account",
	Short:   "Show login, device and store status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		self, err := a.identity.Get()
		if err != nil {
			return err
		}
		total, err := a.db.Count(ctx)
		if err != nil {
			return err
		}
		unsynced, err := a.db.Unsynced(ctx)
		if err != nil {
			return err
		}
		version, err := a.db.SchemaVersion(ctx)
		if err != nil {
			return err
		}

		fmt.Println(headerStyle.Render("Account"))
		if user, ok := a.session.CurrentUser(); ok {
			fmt.Printf("  user:     %s %s\n", okStyle.Render(user.ID), mutedStyle.Render(user.Email))
		} else {
			fmt.Printf("  user:     %s\n", warnStyle.Render("logged out"))
		}
		fmt.Printf("  replica:  %s\n", cfg.Cloud.Backend)

		fmt.Println(headerStyle.Render("Device"))
		fmt.Printf("  %s %s  %s\n", swatch(self.ID), self.Name, mutedStyle.Render(self.ID))
		fmt.Printf("  os:       %s\n", self.OSVersion)

		fmt.Println(headerStyle.Render("Store"))
		fmt.Printf("  path:     %s\n", a.db.Path())
		fmt.Printf("  schema:   v%d (latest v%d)\n", version, localstore.LatestSchemaVersion())
		fmt.Printf("  readings: %d (%d unsynced)\n", total, len(unsynced))
		fmt.Printf("  devices:  %d\n", len(a.registry.List()))
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("yes", false, "Confirm deletion")
	purgeCmd.Flags().String("older-than", "720", "Retention window (default 30 days)")

	rootCmd.AddCommand(clearCmd, purgeCmd, statusCmd)
}
