package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/barolog/barolog/internal/export"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "data",
	Short:   "Export readings as CSV or to InfluxDB",
	Long: `Export readings in the --since window.

CSV output has the columns
  ID,Timestamp,Date,Pressure_hPa,DeviceId,DeviceName,OSVersion
with Date in local time. The influx format writes "pressure" points to the
InfluxDB bucket configured under influx.* (or BAROLOG_INFLUX_*).

Example usage:
  barolog export --since all > readings.csv
  barolog export --format influx --since 24`,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, devices, err := windowFlags(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("output")

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		readings := a.store.Query(ctx, since, devices)

		switch format {
		case "csv":
			w := os.Stdout
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			if err := export.WriteCSV(w, readings, time.Local); err != nil {
				return err
			}
			if w != os.Stdout {
				fmt.Fprintf(os.Stderr, "Exported %d readings to %s\n", len(readings), out)
			}
			return nil

		case "influx":
			ix := cfg.Influx
			exporter, err := export.NewInflux(ix.URL, ix.Token, ix.Org, ix.Bucket, a.logger("export"))
			if err != nil {
				return err
			}
			defer exporter.Close()

			n, err := exporter.Export(ctx, readings)
			if err != nil {
				return err
			}
			fmt.Printf("Exported %d readings to InfluxDB bucket %s\n", n, ix.Bucket)
			return nil

		default:
			return fmt.Errorf("unknown format %q (want csv or influx)", format)
		}
	},
}

func init() {
	addWindowFlags(exportCmd, "all")
	exportCmd.Flags().StringP("format", "f", "csv", "Export format: csv or influx")
	exportCmd.Flags().StringP("output", "o", "", "CSV output file (default: stdout)")

	rootCmd.AddCommand(exportCmd)
}
