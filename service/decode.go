package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"corep-assistant/models"
	"corep-assistant/template"

	"github.com/shopspring/decimal"
)

type wireField struct {
	FieldID    string            `json:"field_id"`
	FieldName  *string           `json:"field_name"`
	Value      json.RawMessage   `json:"value"`
	Reasoning  *string           `json:"reasoning"`
	Citations  *[]string         `json:"citations"`
	Confidence models.Confidence `json:"confidence"`
}

type wireResult struct {
	Fields    []wireField `json:"fields"`
	Narrative *string     `json:"narrative"`
	Warnings  *[]string   `json:"warnings"`
}

// errIncomplete marks a payload that ended before the document closed
var errIncomplete = errors.New("response ended before the document was complete")

// decodeAnalysis strictly decodes a model payload against the template.
// Nothing is repaired: unknown keys, missing keys, trailing data, a field
// count other than the template's, unknown or repeated field IDs and
// invalid confidence levels are all rejected.
func decodeAnalysis(text string, tmpl *template.Template) (*models.AnalysisResult, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()

	var wire wireResult
	if err := dec.Decode(&wire); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %v", errIncomplete, err)
		}
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after the result object")
	}

	if wire.Narrative == nil {
		return nil, errors.New("missing narrative")
	}
	if wire.Warnings == nil {
		return nil, errors.New("missing warnings")
	}
	if len(wire.Fields) != len(tmpl.Fields) {
		return nil, fmt.Errorf("expected %d fields, got %d", len(tmpl.Fields), len(wire.Fields))
	}

	byID := make(map[string]models.PopulatedField, len(wire.Fields))
	for i, wf := range wire.Fields {
		def, ok := tmpl.Field(wf.FieldID)
		if !ok {
			return nil, fmt.Errorf("field %d: unknown field_id %q", i, wf.FieldID)
		}
		if _, dup := byID[wf.FieldID]; dup {
			return nil, fmt.Errorf("field %d: duplicate field_id %q", i, wf.FieldID)
		}
		value, err := decodeAmount(wf.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", wf.FieldID, err)
		}
		if !wf.Confidence.Valid() {
			return nil, fmt.Errorf("field %s: invalid confidence %q", wf.FieldID, wf.Confidence)
		}
		if wf.FieldName == nil || wf.Reasoning == nil || wf.Citations == nil {
			return nil, fmt.Errorf("field %s: missing field_name, reasoning or citations", wf.FieldID)
		}

		name := *wf.FieldName
		if name == "" {
			name = def.Name
		}
		byID[wf.FieldID] = models.PopulatedField{
			FieldID:    wf.FieldID,
			FieldName:  name,
			Value:      value,
			Reasoning:  *wf.Reasoning,
			Citations:  *wf.Citations,
			Confidence: wf.Confidence,
		}
	}

	// every template field is present once, so emit them in template order
	fields := make([]models.PopulatedField, 0, len(tmpl.Fields))
	for _, def := range tmpl.Fields {
		fields = append(fields, byID[def.FieldID])
	}

	return &models.AnalysisResult{
		Fields:    fields,
		Narrative: *wire.Narrative,
		Warnings:  *wire.Warnings,
	}, nil
}

// decodeAmount accepts only a bare JSON number
func decodeAmount(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !(raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')) {
		return decimal.Decimal{}, fmt.Errorf("value must be a number, got %s", string(raw))
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid value %s: %w", string(raw), err)
	}
	return d, nil
}
