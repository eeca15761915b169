package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/barolog/barolog/internal/config"
)

var (
	configFile string
	dataDir    string
	envFile    string
	noColor    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "barolog",
	Short: "Record barometric pressure and sync it across devices",
	Long: `barolog records barometric pressure readings into a local SQLite store,
tags each reading with this device's identity, and synchronizes readings with
a per-user cloud replica so every device of a user converges on the same set.

Configuration is read from config.yaml in the data directory, a .env file and
BAROLOG_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || os.Getenv("NO_COLOR") != "" {
			lipgloss.SetColorProfile(termenv.Ascii)
		}

		loaded, err := config.Load(config.Options{
			ConfigFile: configFile,
			EnvFile:    envFile,
			DataDir:    dataDir,
		})
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.barolog)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Dotenv file to load (default: .env)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "record", Title: "Recording:"},
		&cobra.Group{ID: "data", Title: "Readings:"},
		&cobra.Group{ID: "account", Title: "Account and sync:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
}
