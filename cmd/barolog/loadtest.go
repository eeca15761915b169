package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/barolog/barolog/internal/cloud"
	"github.com/barolog/barolog/internal/loadtest"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "advanced",
	Short:   "Simulate many devices syncing through one replica",
	Long: `Create a fleet of simulated devices in a temporary directory, record
readings on each, run concurrent sync rounds, and verify that every device
converges on the same readings. Sync cycle latency percentiles are printed.

By default an in-memory replica is used; --use-config runs against the
configured cloud backend under a throwaway user id.

Example usage:
  barolog loadtest --devices 20 --readings 500
  barolog loadtest --use-config --devices 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, _ := cmd.Flags().GetInt("devices")
		perDevice, _ := cmd.Flags().GetInt("readings")
		rounds, _ := cmd.Flags().GetInt("rounds")
		useConfig, _ := cmd.Flags().GetBool("use-config")

		ctx := cmd.Context()

		var replica cloud.Replica = cloud.NewMemory()
		if useConfig {
			r, err := cloud.Open(ctx, cfg.CloudConfig())
			if err != nil {
				return err
			}
			replica = r
		}
		defer replica.Close()

		dir, err := os.MkdirTemp("", "barolog-loadtest-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		userID := fmt.Sprintf("loadtest-%d", time.Now().UnixNano())
		fleet, err := loadtest.NewFleet(ctx, dir, devices, replica, userID, nil)
		if err != nil {
			return err
		}
		defer fleet.Close()

		start := time.Now()
		if err := fleet.Record(ctx, perDevice); err != nil {
			return err
		}
		fmt.Printf("Recorded %d readings on %d devices in %v\n", fleet.Recorded, devices, time.Since(start).Round(time.Millisecond))

		stats, err := fleet.SyncAll(ctx, rounds)
		if err != nil {
			return err
		}
		stats.Fprint(os.Stdout)

		if err := fleet.Verify(ctx); err != nil {
			fmt.Println(errStyle.Render("Not converged: " + err.Error()))
			return err
		}
		fmt.Println(okStyle.Render("All devices converged"))
		return nil
	},
}

func init() {
	loadtestCmd.Flags().Int("devices", 10, "Number of simulated devices")
	loadtestCmd.Flags().Int("readings", 100, "Readings recorded per device")
	loadtestCmd.Flags().Int("rounds", 2, "Concurrent sync rounds")
	loadtestCmd.Flags().Bool("use-config", false, "Use the configured cloud backend instead of memory")

	rootCmd.AddCommand(loadtestCmd)
}
