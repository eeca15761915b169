package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:     "devices",
	GroupID: "data",
	Short:   "List devices that have recorded readings",
	Long: `List the distinct devices present in the local store with their chart
color. Devices of other installations appear after a sync downloads their
readings. The current device is marked with *.`,
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

		devices := a.registry.List()
		if len(devices) == 0 {
			fmt.Println(mutedStyle.Render("No devices yet"))
			return nil
		}

		for _, d := range devices {
			mark := " "
			if d.ID == self.ID {
				mark = "*"
			}
			fmt.Printf("%s %s %-24s %s  %s\n",
				mark, swatch(d.ID), deviceLabel(d.Name, d.ID), mutedStyle.Render(d.OSVersion), mutedStyle.Render(d.ID))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
