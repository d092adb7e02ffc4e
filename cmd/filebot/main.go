package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/filebot/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "filebot",
	Short:         "Telegram file-store bot",
	Long:          "filebot stores documents sent by admins and hands out permanent links to them.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Load()
	},
	// serve is the default command.
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	// Server
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(routeListCmd)

	// Telegram
	rootCmd.AddCommand(webhookSetCmd)
	rootCmd.AddCommand(webhookDeleteCmd)

	// Admin API
	rootCmd.AddCommand(tokenIssueCmd)
}
