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
		fmt.Printf("VALID: digitiser_event=%s frame_event=%s frame_ttl=%s expected_digitisers=%d brokers=%d\n",
			cfg.Topics.DigitiserEvent, cfg.Topics.FrameEvent, cfg.Aggregator.FrameTTL,
			len(cfg.Aggregator.ExpectedDigitisers), len(cfg.Kafka.Brokers))
	},
}
