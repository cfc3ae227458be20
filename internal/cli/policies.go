package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var policiesJSON bool

func init() {
	rootCmd.AddCommand(policiesCmd)
	policiesCmd.Flags().BoolVar(&policiesJSON, "json", false, "print policies as JSON")
}

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "Validate and list the active policies",
	RunE: func(cmd *cobra.Command, _ []string) error {
		set, err := loadPolicies(flags.policies)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if policiesJSON {
			all := make(map[string]any, len(set.Names()))
			for _, name := range set.Names() {
				p, _ := set.Get(name)
				all[name] = p
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(all)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tENDPOINT\tQUOTA\tWINDOW\tACTION\tBOT\tATOMIC")
		for _, name := range set.Names() {
			p, _ := set.Get(name)
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%t\t%t\n", name, p.Endpoint, p.MaxRequests, p.Window, p.Action, p.RequireBotCheck, p.AtomicQuota)
		}
		return tw.Flush()
	},
}
