// Package validation checks populated C 01.00 values against the own funds
// consistency rules. Rule failures are reported as data, never as errors.
package validation

import (
	"fmt"
	"strings"

	"corep-assistant/models"
	"corep-assistant/template"

	"github.com/shopspring/decimal"
)

// DefaultTolerance is the absolute rounding tolerance of the identity rules.
// It is a literal amount in reporting units and does not scale with magnitude.
var DefaultTolerance = decimal.NewFromFloat(0.5)

type ruleKind int

const (
	kindIdentity ruleKind = iota
	kindNonNegative
)

// Term is one signed operand of an identity rule
type Term struct {
	row      string
	subtract bool
}

// Plus adds a row to the expected side of an identity
func Plus(row string) Term { return Term{row: row} }

// Minus subtracts a row on the expected side of an identity
func Minus(row string) Term { return Term{row: row, subtract: true} }

// Rule is a single consistency check over field values
type Rule struct {
	ID          string
	Description string
	// Tolerance is zero for exact checks.
	Tolerance decimal.Decimal

	kind   ruleKind
	target string
	terms  []Term
}

// Identity builds a rule asserting target = sum(terms) within tolerance
func Identity(id, description string, tolerance decimal.Decimal, target string, terms ...Term) Rule {
	return Rule{
		ID:          id,
		Description: description,
		Tolerance:   tolerance,
		kind:        kindIdentity,
		target:      target,
		terms:       terms,
	}
}

// NonNegative builds a rule asserting row >= 0 with no tolerance
func NonNegative(id, description, row string) Rule {
	return Rule{
		ID:          id,
		Description: description,
		Tolerance:   decimal.Zero,
		kind:        kindNonNegative,
		target:      row,
	}
}

// DefaultRules returns the six C 01.00 rules V001-V006
func DefaultRules() []Rule {
	tol := DefaultTolerance
	return []Rule{
		Identity("V001", "Own Funds = Tier 1 + Tier 2", tol,
			template.RowOwnFunds, Plus(template.RowTier1), Plus(template.RowTier2)),
		Identity("V002", "Tier 1 = CET1 + AT1", tol,
			template.RowTier1, Plus(template.RowCET1), Plus(template.RowAT1)),
		Identity("V003", "CET1 = Instruments + RE + AOCI + Reserves - Goodwill - Intangibles - DTA", tol,
			template.RowCET1,
			Plus(template.RowCET1Instruments),
			Plus(template.RowRetainedEarnings),
			Plus(template.RowAOCI),
			Plus(template.RowOtherReserves),
			Minus(template.RowGoodwill),
			Minus(template.RowOtherIntangibles),
			Minus(template.RowDeferredTaxAssets)),
		Identity("V004", "CET1 instruments = paid up instruments + share premium + other instruments", tol,
			template.RowCET1Instruments,
			Plus(template.RowPaidUpInstruments),
			Plus(template.RowSharePremium),
			Plus(template.RowOtherCET1Instruments)),
		NonNegative("V005", "Own Funds must be non-negative", template.RowOwnFunds),
		NonNegative("V006", "CET1 must be non-negative", template.RowCET1),
	}
}

// Evaluate applies the rule to the given values
func (r Rule) Evaluate(values FieldValues) models.ValidationResult {
	if r.kind == kindNonNegative {
		return r.evaluateNonNegative(values)
	}
	return r.evaluateIdentity(values)
}

func (r Rule) evaluateIdentity(values FieldValues) models.ValidationResult {
	actual := values.Get(r.target)
	expected := decimal.Zero
	for _, t := range r.terms {
		if t.subtract {
			expected = expected.Sub(values.Get(t.row))
		} else {
			expected = expected.Add(values.Get(t.row))
		}
	}
	deviation := actual.Sub(expected)
	passed := deviation.Abs().LessThanOrEqual(r.Tolerance)

	res := models.ValidationResult{
		RuleID:      r.ID,
		Description: r.Description,
		Passed:      passed,
		Expected:    expected,
		Actual:      actual,
		Deviation:   deviation,
	}
	if !passed {
		res.Message = fmt.Sprintf("%s (%s) != %s = %s (deviation %s)",
			r.target, actual.String(), r.formula(), expected.String(), deviation.String())
	}
	return res
}

func (r Rule) evaluateNonNegative(values FieldValues) models.ValidationResult {
	value := values.Get(r.target)
	passed := !value.IsNegative()

	res := models.ValidationResult{
		RuleID:      r.ID,
		Description: r.Description,
		Passed:      passed,
		Expected:    decimal.Zero,
		Actual:      value,
		Deviation:   value,
	}
	if !passed {
		res.Message = fmt.Sprintf("%s (%s) is negative", r.target, value.String())
	}
	return res
}

// Expression renders the rule in the row-code form used by the template,
// e.g. "r0010 = r0020 + r0500" or "r0010 >= 0"
func (r Rule) Expression() string {
	if r.kind == kindNonNegative {
		return r.target + " >= 0"
	}
	return r.target + " = " + r.formula()
}

func (r Rule) formula() string {
	var b strings.Builder
	for i, t := range r.terms {
		switch {
		case t.subtract:
			b.WriteString(" - ")
		case i > 0:
			b.WriteString(" + ")
		}
		b.WriteString(t.row)
	}
	return strings.TrimPrefix(b.String(), " ")
}
