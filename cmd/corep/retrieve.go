package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"corep-assistant/app"
	"corep-assistant/retrieval"

	"github.com/spf13/cobra"
)

func newRetrieveCmd(boot bootFunc) *cobra.Command {
	var (
		method string
		topK   int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Rank regulatory text against a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := optionalMethod(method)
			if err != nil {
				return err
			}
			return withApp(cmd, boot, func(a *app.App) error {
				got, err := a.Retriever.Retrieve(cmd.Context(), strings.Join(args, " "), m, topK)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), got)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "method=%s strategy=%s fallback=%t\n", got.Method, got.Strategy, got.Fallback)
				for _, w := range got.Warnings {
					fmt.Fprintf(out, "warning: %s\n", w)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RANK\tSCORE\tCHUNK\tCITATION")
				for i, r := range got.Results {
					fmt.Fprintf(tw, "%d\t%.4f\t%s\t%s\n", i+1, r.Score, r.Chunk.ID, r.Chunk.Citation())
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", "", "auto, semantic or keyword (default from RETRIEVAL_MODE)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to return (default from RETRIEVAL_TOP_K)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func optionalMethod(s string) (retrieval.Method, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return retrieval.ParseMethod(s)
}
