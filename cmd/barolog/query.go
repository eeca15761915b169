package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/barolog/barolog/internal/reading"
)

const timeLayout = "2006-01-02 15:04:05"

var queryCmd = &cobra.Command{
	Use:     "query",
	GroupID: "data",
	Short:   "List readings from the local store",
	Long: `List readings recorded in the last --since window, oldest first.

--since accepts hours ("24"), a duration ("90m") or a natural-language time
("yesterday", "last monday"). Use --device (repeatable) to restrict the
listing to specific devices.

Example usage:
  barolog query --since 6
  barolog query --since yesterday --device 3f2c... --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, devices, err := windowFlags(cmd)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		readings := a.store.Query(ctx, since, devices)
		if limit > 0 && len(readings) > limit {
			readings = readings[len(readings)-limit:]
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if readings == nil {
				readings = []*reading.Reading{}
			}
			return enc.Encode(readings)
		}

		if len(readings) == 0 {
			fmt.Println(mutedStyle.Render("No readings"))
			return nil
		}

		fmt.Println(headerStyle.Render(fmt.Sprintf("%-19s  %9s  %-20s  %s", "TIME", "HPA", "DEVICE", "SYNC")))
		for _, r := range readings {
			state := mutedStyle.Render("local")
			if r.Synced {
				state = okStyle.Render("synced")
			}
			fmt.Printf("%-19s  %9.1f  %s %-17s  %s\n",
				r.Time().Format(timeLayout), r.Value, swatch(r.DeviceID), truncate(deviceLabel(r.DeviceName, r.DeviceID), 17), state)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "data",
	Short:   "Show min, max and average pressure",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, devices, err := windowFlags(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.store.Stats(ctx, since, devices)

		window := "all time"
		if since > 0 {
			window = fmt.Sprintf("last %dh", since)
		}
		fmt.Println(headerStyle.Render("Pressure, " + window))
		if s.Count == 0 {
			fmt.Println(mutedStyle.Render("  no readings"))
			return nil
		}
		w := reading.Interpret(s.Avg)
		fmt.Printf("  min:     %.1f hPa\n", s.Min)
		fmt.Printf("  max:     %.1f hPa\n", s.Max)
		fmt.Printf("  avg:     %.1f hPa\n", s.Avg)
		fmt.Printf("  count:   %d\n", s.Count)
		fmt.Printf("  weather: %s\n", weatherStyle(w).Render(w.String()))
		return nil
	},
}

// windowFlags reads the shared --since and --device flags.
func windowFlags(cmd *cobra.Command) (int, []string, error) {
	raw, _ := cmd.Flags().GetString("since")
	since, err := parseSince(raw, time.Now())
	if err != nil {
		return 0, nil, err
	}
	devices, _ := cmd.Flags().GetStringSlice("device")
	return since, devices, nil
}

func addWindowFlags(cmd *cobra.Command, defaultSince string) {
	cmd.Flags().String("since", defaultSince, `Time window: hours, a duration, a phrase like "yesterday", or "all"`)
	cmd.Flags().StringSlice("device", nil, "Restrict to these device ids")
}

func deviceLabel(name, id string) string {
	if name != "" {
		return name
	}
	if id != "" {
		return id
	}
	return "unknown"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func init() {
	addWindowFlags(queryCmd, "24")
	queryCmd.Flags().Bool("json", false, "Output JSON")
	queryCmd.Flags().Int("limit", 0, "Show only the newest N readings")

	addWindowFlags(statsCmd, "24")

	rootCmd.AddCommand(queryCmd, statsCmd)
}
