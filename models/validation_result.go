package models

import (
	"github.com/shopspring/decimal"
)

// ValidationResult is the outcome of one consistency rule.
// Deviation is actual - expected for identity rules and the raw value for
// non-negativity rules, recorded whether or not the rule passed.
type ValidationResult struct {
	RuleID      string          `json:"rule_id"`
	Description string          `json:"description"`
	Passed      bool            `json:"passed"`
	Expected    decimal.Decimal `json:"expected"`
	Actual      decimal.Decimal `json:"actual"`
	Deviation   decimal.Decimal `json:"deviation"`
	Message     string          `json:"message,omitempty"`
}
