package main

import (
	"github.com/spf13/cobra"
)

var (
	configFile   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "writer",
	Short: "Run-state and append-writer stage of the pulse-core pipeline",
	Long: `writer maintains the run/frame state machine and appends incoming
frames, logs, sample-environment values, and alarms into per-run NeXus
files, retiring each run from temp/ to completed/ once it has been
stopped and sat idle past its flush_delay.`,
	Version: "0.1.0",
}

// Execute runs the root command; called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/pulse-core/writer.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"override the configured log level (debug|info|warn|error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
