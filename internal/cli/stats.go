package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/formguard/sinks/redisstats"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print verdict counters aggregated in Redis by serve",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if flags.redisURL == "" {
			return fmt.Errorf("stats requires --redis-url")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		f := flags
		f.ledger = "memory"
		be, err := openBackend(ctx, f, 0)
		if err != nil {
			return err
		}
		defer be.Close()

		sink := redisstats.New(be.redis, redisstats.WithPrefix(flags.keyPrefix+":stats"))
		totals, err := sink.Totals(ctx)
		if err != nil {
			return err
		}
		reasons, err := sink.Reasons(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "outcomes:")
		printCounts(cmd, totals)
		fmt.Fprintln(out, "denial reasons:")
		printCounts(cmd, reasons)
		return nil
	},
}

func printCounts(cmd *cobra.Command, counts map[string]int64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-32s %d\n", k, counts[k])
	}
}
