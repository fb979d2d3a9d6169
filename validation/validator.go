package validation

import (
	"sort"
	"strings"

	"corep-assistant/models"
	"corep-assistant/template"

	"github.com/shopspring/decimal"
)

// FieldValues maps row codes to values. Lookups by row code (r0010) also
// resolve full field identifiers (r0010_c0010). Missing rows read as zero.
type FieldValues map[string]decimal.Decimal

// NewFieldValues indexes values keyed by field ID or row code. When several
// keys name the same row, an exact row code wins over r0010_c0010, which wins
// over any other column; remaining ties go to the lexically smallest key.
func NewFieldValues(values map[string]decimal.Decimal) FieldValues {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fv := make(FieldValues, len(values))
	rank := make(map[string]int, len(values))
	for _, key := range keys {
		k := strings.ToLower(strings.TrimSpace(key))
		row, col, suffixed := strings.Cut(k, "_")
		r := 0
		switch {
		case !suffixed:
			r = 2
		case col == template.Column:
			r = 1
		}
		if prev, seen := rank[row]; seen && prev >= r {
			continue
		}
		rank[row] = r
		fv[row] = values[key]
	}
	return fv
}

// Get returns the value of a row, or zero when absent
func (fv FieldValues) Get(row string) decimal.Decimal {
	return fv[row]
}

// Validator evaluates a fixed rule table
type Validator struct {
	rules []Rule
}

// NewValidator creates a validator over the given rules, or the default
// C 01.00 rules when none are given
func NewValidator(rules ...Rule) *Validator {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Validator{rules: rules}
}

// Rules returns the rule table
func (v *Validator) Rules() []Rule {
	return v.rules
}

// Validate runs every rule independently and returns one result per rule in
// rule order
func (v *Validator) Validate(values map[string]decimal.Decimal) []models.ValidationResult {
	fv := NewFieldValues(values)
	results := make([]models.ValidationResult, 0, len(v.rules))
	for _, rule := range v.rules {
		results = append(results, rule.Evaluate(fv))
	}
	return results
}

// ValidateFields validates populated fields produced by an analysis run
func (v *Validator) ValidateFields(fields []models.PopulatedField) []models.ValidationResult {
	values := make(map[string]decimal.Decimal, len(fields))
	for _, f := range fields {
		values[f.FieldID] = f.Value
	}
	return v.Validate(values)
}
