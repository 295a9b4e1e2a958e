package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/supermusr-data-pipeline/pulse-core/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the config file without starting the stage",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("VALID: temp_dir=%s completed_dir=%s shard_count=%d flush_interval=%s flush_delay=%s topics=[%s %s %s %s %s]\n",
			cfg.Writer.TempDir, cfg.Writer.CompletedDir, cfg.Writer.ShardCount,
			cfg.Writer.FlushInterval, cfg.Writer.FlushDelay,
			cfg.Topics.FrameEvent, cfg.Topics.SampleEnv, cfg.Topics.RunLog, cfg.Topics.Alarm, cfg.Topics.Control)
	},
}
