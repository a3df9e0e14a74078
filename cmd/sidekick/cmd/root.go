// Package cmd holds the sidekick CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "sidekick",
	Short: "CompanyGPT browser assistant host",
	Long: `Sidekick hosts the CompanyGPT browser assistant: tenant-aware chat,
page extraction, document conversion and reply injection, served to the
browser contexts over a local message API.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
