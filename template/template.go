// Package template holds the C 01.00 (Own Funds) field definitions and the
// consistency rule descriptions shared by the analysis engine and validator.
package template

import (
	"errors"
	"fmt"
	"strings"

	"corep-assistant/data"

	"gopkg.in/yaml.v3"
)

// Row codes of the C 01.00 own funds hierarchy
const (
	RowOwnFunds             = "r0010"
	RowTier1                = "r0020"
	RowCET1                 = "r0030"
	RowCET1Instruments      = "r0040"
	RowPaidUpInstruments    = "r0050"
	RowSharePremium         = "r0060"
	RowOtherCET1Instruments = "r0070"
	RowRetainedEarnings     = "r0100"
	RowAOCI                 = "r0110"
	RowOtherReserves        = "r0130"
	RowGoodwill             = "r0200"
	RowOtherIntangibles     = "r0210"
	RowDeferredTaxAssets    = "r0220"
	RowAT1                  = "r0300"
	RowAT1Instruments       = "r0310"
	RowTier2                = "r0500"
)

// Column is the single amount column of C 01.00
const Column = "c0010"

// Sign values of a field
const (
	SignPositive  = "positive"
	SignDeduction = "deduction"
)

// FieldID returns the full field identifier for a row code, e.g. r0010_c0010
func FieldID(row string) string {
	return row + "_" + Column
}

// Field is a single cell of the template
type Field struct {
	FieldID      string `yaml:"field_id" json:"field_id"`
	RowID        string `yaml:"row_id" json:"row_id"`
	ColID        string `yaml:"col_id" json:"col_id"`
	Name         string `yaml:"name" json:"name"`
	Description  string `yaml:"description" json:"description"`
	CRRReference string `yaml:"crr_reference" json:"crr_reference"`
	Formula      string `yaml:"formula,omitempty" json:"formula,omitempty"`
	Source       string `yaml:"source,omitempty" json:"source,omitempty"`
	Sign         string `yaml:"sign,omitempty" json:"sign"`
	Level        int    `yaml:"level" json:"level"`
}

// Rule describes a consistency rule in the form shown to the model and users
type Rule struct {
	RuleID      string `yaml:"rule_id" json:"rule_id"`
	Description string `yaml:"description" json:"description"`
	Expression  string `yaml:"expression" json:"expression"`
}

// Template is a reporting template definition
type Template struct {
	TemplateID         string  `yaml:"template_id" json:"template_id"`
	TemplateName       string  `yaml:"template_name" json:"template_name"`
	ReportingFramework string  `yaml:"reporting_framework" json:"reporting_framework"`
	Regulation         string  `yaml:"regulation" json:"regulation"`
	CurrencyUnit       string  `yaml:"currency_unit" json:"currency_unit"`
	Fields             []Field `yaml:"fields" json:"fields"`
	Rules              []Rule  `yaml:"rules" json:"rules"`

	index map[string]int
}

// Parse decodes a YAML template definition and checks field identity
func Parse(raw []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if len(t.Fields) == 0 {
		return nil, errors.New("template defines no fields")
	}

	t.index = make(map[string]int, len(t.Fields))
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.FieldID == "" {
			return nil, fmt.Errorf("template field %d has no field_id", i)
		}
		if _, dup := t.index[f.FieldID]; dup {
			return nil, fmt.Errorf("duplicate template field: %s", f.FieldID)
		}
		if f.RowID == "" {
			f.RowID = strings.SplitN(f.FieldID, "_", 2)[0]
		}
		if f.Sign == "" {
			f.Sign = SignPositive
		}
		t.index[f.FieldID] = i
	}
	return &t, nil
}

// Default returns the embedded C 01.00 definition
func Default() (*Template, error) {
	return Parse(data.TemplateC0100)
}

// FieldIDs returns the field identifiers in template order
func (t *Template) FieldIDs() []string {
	ids := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		ids[i] = f.FieldID
	}
	return ids
}

// Field looks up a field definition by its identifier
func (t *Template) Field(id string) (Field, bool) {
	i, ok := t.index[id]
	if !ok {
		return Field{}, false
	}
	return t.Fields[i], true
}
