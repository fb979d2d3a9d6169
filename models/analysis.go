package models

import (
	"github.com/shopspring/decimal"
)

// Confidence is the quality signal the model attaches to each populated field
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Confidences lists the accepted confidence levels in schema order
var Confidences = []Confidence{ConfidenceHigh, ConfidenceMedium, ConfidenceLow}

// Valid reports whether c is one of the accepted levels
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// PopulatedField is a single template cell filled in by the analysis step
type PopulatedField struct {
	FieldID    string          `json:"field_id"`
	FieldName  string          `json:"field_name"`
	Value      decimal.Decimal `json:"value"`
	Reasoning  string          `json:"reasoning"`
	Citations  []string        `json:"citations"`
	Confidence Confidence      `json:"confidence"`
}

// AnalysisResult is the complete structured output of one analysis run
type AnalysisResult struct {
	Fields    []PopulatedField `json:"fields"`
	Narrative string           `json:"narrative"`
	Warnings  []string         `json:"warnings"`
}

// Values returns the populated values keyed by field ID
func (r *AnalysisResult) Values() map[string]decimal.Decimal {
	values := make(map[string]decimal.Decimal, len(r.Fields))
	for _, f := range r.Fields {
		values[f.FieldID] = f.Value
	}
	return values
}
