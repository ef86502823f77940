package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "goatlink",
	Short: "GoatLink remote assistance server",
	Long:  "TCP server for remote assistance sessions: work orders, expert chat, device telemetry and media relay.",
	RunE:  runServe,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
