package cmd

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/akalivaty/Artale-drop-bot/internal/analytics"
	"github.com/akalivaty/Artale-drop-bot/pkg/kafka"
)

func newStatsCmd(opts *options) *cobra.Command {
	var (
		window    time.Duration
		fromStart bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate query events from the analytics topic",
		Long: "Consumes query events published by the server for the given window " +
			"and prints the aggregated statistics as JSON.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agg := analytics.NewAggregator()
			consumer := kafka.NewConsumer(opts.cfg.Kafka, fromStart, analytics.HandleEvent(agg))

			ctx, cancel := context.WithTimeout(cmd.Context(), window)
			defer cancel()
			if err := consumer.Run(ctx); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(agg.Stats())
		},
	}
	cmd.Flags().DurationVar(&window, "for", 30*time.Second, "how long to consume before printing")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "read from the oldest retained event")
	return cmd
}
