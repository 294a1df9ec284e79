// Package cli is the thin outer CLI surface around the core (spec.md
// §6: "None in the core; a thin outer binary may expose serve"), kept in
// the teacher's cobra-root-plus-subcommand shape.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "veritasd",
	Short: "Run the veritas-kanban server core",
	Long: `veritasd is the server core of veritas-kanban: it spawns and supervises
external agent processes against per-task working directories, streams their
output live to browser clients, and records time-partitioned telemetry.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "veritasd.yaml", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		green.Println("veritasd " + Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
