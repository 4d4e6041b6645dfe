package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/salesdesk/salesdesk/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "salesdesk",
	Short: "Appointment claim coordination for the dealership sales dashboard",
	Long: `salesdesk coordinates follow-up call slots between sales executives.

Executives claim slots from a shared pool; a claim is a 30 minute lease that
is released automatically if it is not completed. Dashboards receive live
updates over a websocket and reconcile by polling.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to a .env file (ignored if missing)")
}

// loadConfig reads configuration using the root persistent flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	return config.Load(path, envFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
