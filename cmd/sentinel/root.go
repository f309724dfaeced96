package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sentinel/cmd/sentinel/aggregator"
	"sentinel/cmd/sentinel/orchestrator"
	"sentinel/cmd/sentinel/replay"
)

var verbose bool

func Execute() error {
	rootCmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Scan control-plane for the sentinel platform",
		Long:  `Sentinel runs the scan orchestrator, the results aggregator and operator tooling for the scan pipeline`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			} else {
				log.SetLevel(log.InfoLevel)
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(orchestrator.NewOrchestratorCommand())
	rootCmd.AddCommand(aggregator.NewAggregatorCommand())
	rootCmd.AddCommand(replay.NewReplayCommand())

	return rootCmd.ExecuteContext(context.Background())
}
