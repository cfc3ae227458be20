package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/formguard"
)

var purgeTimeout time.Duration

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().DurationVar(&purgeTimeout, "timeout", 2*time.Minute, "purge deadline")
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove ledger attempts older than the retention period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), purgeTimeout)
		defer cancel()

		cfg := formguard.ConfigFromEnv()
		cfg.RateLimit.PurgeInterval = -1

		be, err := openBackend(ctx, flags, cfg.RateLimit.Retention)
		if err != nil {
			return err
		}
		defer be.Close()

		g, err := formguard.New().WithConfig(cfg).WithLedger(be.ledger).WithLogger(logger).Build()
		if err != nil {
			return err
		}
		defer g.Close()

		n, err := g.PurgeLedger(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d attempts older than %s\n", n, cfg.RateLimit.Retention)
		return nil
	},
}
