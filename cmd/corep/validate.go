package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"corep-assistant/app"
	"corep-assistant/models"
	"corep-assistant/template"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var errRulesFailed = errors.New("validation rules failed")

func newValidateCmd(boot bootFunc) *cobra.Command {
	var (
		fieldsFile string
		scenario   string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check C 01.00 values against the validation rules",
		Long: "Validate either a JSON object of field values (keyed by row code or field id) " +
			"or the values derived from a reference scenario. Exits non-zero when a rule fails.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (fieldsFile == "") == (scenario == "") {
				return errors.New("exactly one of --fields or --scenario is required")
			}
			return withApp(cmd, boot, func(a *app.App) error {
				values, err := validateInput(a, fieldsFile, scenario)
				if err != nil {
					return err
				}

				results := a.Validator.Validate(values)
				summary := models.Summarize(results)
				if asJSON {
					if err := writeJSON(cmd.OutOrStdout(), map[string]any{"results": results, "summary": summary}); err != nil {
						return err
					}
				} else if err := printResults(cmd, results, summary); err != nil {
					return err
				}

				if summary.Failed > 0 {
					return fmt.Errorf("%w: %d of %d", errRulesFailed, summary.Failed, summary.Total)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&fieldsFile, "fields", "f", "", "JSON file of field values")
	cmd.Flags().StringVarP(&scenario, "scenario", "s", "", "reference scenario name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the results as JSON")
	return cmd
}

func validateInput(a *app.App, fieldsFile, scenario string) (map[string]decimal.Decimal, error) {
	if scenario != "" {
		s, ok := template.FindScenario(a.Scenarios, scenario)
		if !ok {
			return nil, fmt.Errorf("no reference scenario named %q", scenario)
		}
		input := s.Scenario
		input.ApplyDefaults()
		return template.ReferenceValues(&input), nil
	}

	raw, err := os.ReadFile(fieldsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read fields file: %w", err)
	}
	var values map[string]decimal.Decimal
	if err := sonic.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("failed to parse fields file: %w", err)
	}
	return values, nil
}

func printResults(cmd *cobra.Command, results []models.ValidationResult, summary models.ValidationSummary) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tRESULT\tEXPECTED\tACTUAL\tDEVIATION\tDESCRIPTION")
	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.RuleID, status, r.Expected, r.Actual, r.Deviation, r.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%d/%d rules passed\n", summary.Passed, summary.Total)
	return err
}
