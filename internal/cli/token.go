package cli

import (
	"fmt"
	"net/http/httptest"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/formguard"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a fresh anti-forgery token and its cookie, for manual testing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := formguard.ConfigFromEnv()
		cfg.RateLimit.Enabled = false

		g, err := formguard.New().WithConfig(cfg).WithLogger(logger).Build()
		if err != nil {
			return err
		}
		defer g.Close()

		rec := httptest.NewRecorder()
		value, err := g.IssueToken(rec)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %s\n", cfg.Token.HeaderName, value)
		fmt.Fprintf(out, "Set-Cookie: %s\n", rec.Header().Get("Set-Cookie"))
		return nil
	},
}
