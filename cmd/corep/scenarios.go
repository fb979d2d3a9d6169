package main

import (
	"fmt"
	"text/tabwriter"

	"corep-assistant/app"

	"github.com/spf13/cobra"
)

func newScenariosCmd(boot bootFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the reference scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, boot, func(a *app.App) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tBANK\tQUERY")
				for _, s := range a.Scenarios {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.Scenario.BankName, s.Query)
				}
				return tw.Flush()
			})
		},
	}
}
