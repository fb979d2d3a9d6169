package service

import (
	"fmt"
	"strings"

	"corep-assistant/models"
	"corep-assistant/template"
)

// SystemInstruction frames the model as a COREP own funds specialist
const SystemInstruction = `You are a PRA regulatory reporting specialist with deep expertise in:
- The Capital Requirements Regulation (CRR 575/2013 as amended by CRR2)
- COREP reporting templates, specifically C 01.00 (Own Funds)
- EBA reporting instructions and validation rules
- PRA Rulebook requirements for UK-authorised firms

Populate COREP template C 01.00 from a bank scenario and the regulatory text provided.
Map each scenario amount to the correct field, apply the deduction rules of CRR
Articles 36 to 47, derive totals with the template formulas, cite the regulation
behind each value, flag missing information or assumptions as warnings, and keep
the output internally consistent (for example r0010 = r0020 + r0500).

Report deduction fields as positive numbers; they are subtracted by the formulas.`

// BuildPrompt renders the single analysis prompt
func BuildPrompt(query string, scenario *models.ScenarioInput, chunks []models.ScoredChunk, tmpl *template.Template) string {
	var b strings.Builder

	unit := strings.ReplaceAll(tmpl.CurrencyUnit, "_", " ")
	if unit == "" {
		unit = "thousands " + scenario.Currency
	}

	b.WriteString("USER QUERY:\n")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "BANK SCENARIO DATA (all values in %s):\n", unit)
	fmt.Fprintf(&b, "  bank_name: %s\n", scenario.BankName)
	fmt.Fprintf(&b, "  reporting_date: %s\n", scenario.ReportingDate)
	fmt.Fprintf(&b, "  currency: %s\n", scenario.Currency)
	for _, a := range scenario.Amounts() {
		fmt.Fprintf(&b, "  %s: %s\n", a.Key, a.Value.String())
	}
	b.WriteString("\n")

	b.WriteString("RELEVANT REGULATORY TEXT:\n")
	if len(chunks) == 0 {
		b.WriteString("(none retrieved)\n")
	}
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s\n", c.Chunk.Citation(), strings.TrimSpace(c.Chunk.Text))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "TEMPLATE FIELDS TO POPULATE (%s - %s):\n", tmpl.TemplateID, tmpl.TemplateName)
	for _, f := range tmpl.Fields {
		fmt.Fprintf(&b, "  %s: %s", f.FieldID, f.Name)
		if f.Formula != "" {
			fmt.Fprintf(&b, " (formula: %s)", f.Formula)
		}
		if f.Sign == template.SignDeduction {
			b.WriteString(" (deduction, report as positive)")
		}
		fmt.Fprintf(&b, " [%s]\n", f.CRRReference)
	}
	b.WriteString("\n")

	b.WriteString("VALIDATION RULES THAT MUST HOLD:\n")
	for _, r := range tmpl.Rules {
		fmt.Fprintf(&b, "  %s: %s (%s)\n", r.RuleID, r.Expression, r.Description)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, `INSTRUCTIONS:
- Populate ALL %d template fields listed above, each exactly once
- For each field give the value, step-by-step reasoning and regulatory citations
- Deduction fields (goodwill, intangibles, DTA) are POSITIVE numbers
- Ensure all validation rules hold in your output
- Set confidence to "high" when the mapping is direct, "medium" when judgment is needed, "low" when data is missing
- If a field has no applicable data, set value to 0 and explain why
`, len(tmpl.Fields))

	return b.String()
}
