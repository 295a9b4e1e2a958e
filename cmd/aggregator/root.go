package main

import (
	"github.com/spf13/cobra"
)

var (
	configFile   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "aggregator",
	Short: "Frame aggregation stage of the pulse-core pipeline",
	Long: `aggregator correlates per-digitiser event contributions into complete
frames and republishes them to the frame_event topic.

It consumes digitiser_event and produces frame_event, holding each
in-flight frame until every expected digitiser has contributed or the
frame's completion timeout has passed.`,
	Version: "0.1.0",
}

// Execute runs the root command; called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/pulse-core/aggregator.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"override the configured log level (debug|info|warn|error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
