package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"corep-assistant/app"
	"corep-assistant/models"
	"corep-assistant/service"
	"corep-assistant/template"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd(boot bootFunc) *cobra.Command {
	var (
		scenario     string
		scenarioFile string
		query        string
		method       string
		topK         int
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Populate C 01.00 for a scenario and validate the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (scenario == "") == (scenarioFile == "") {
				return errors.New("exactly one of --scenario or --scenario-file is required")
			}
			m, err := optionalMethod(method)
			if err != nil {
				return err
			}
			return withApp(cmd, boot, func(a *app.App) error {
				var input *models.ScenarioInput
				q := query
				if scenario != "" {
					s, ok := template.FindScenario(a.Scenarios, scenario)
					if !ok {
						return fmt.Errorf("no reference scenario named %q", scenario)
					}
					input = &s.Scenario
					if strings.TrimSpace(q) == "" {
						q = s.Query
					}
				} else {
					raw, err := os.ReadFile(scenarioFile)
					if err != nil {
						return fmt.Errorf("failed to read scenario file: %w", err)
					}
					if input, err = models.ParseScenario(raw); err != nil {
						return err
					}
				}

				report, err := a.Reports.Run(cmd.Context(), service.RunRequest{
					Query:    q,
					Scenario: input,
					Method:   m,
					TopK:     topK,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVarP(&scenario, "scenario", "s", "", "reference scenario name")
	cmd.Flags().StringVar(&scenarioFile, "scenario-file", "", "JSON file with scenario data")
	cmd.Flags().StringVarP(&query, "query", "q", "", "question to answer (defaults to the scenario's query)")
	cmd.Flags().StringVarP(&method, "method", "m", "", "auto, semantic or keyword")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to retrieve")
	return cmd
}
