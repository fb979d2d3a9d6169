package gemini

import (
	"corep-assistant/models"

	"github.com/google/generative-ai-go/genai"
)

// AnalysisSchema is the response schema for an analysis over the given
// template field IDs. It mirrors models.AnalysisResult.
func AnalysisSchema(fieldIDs []string) *genai.Schema {
	confidences := make([]string, len(models.Confidences))
	for i, c := range models.Confidences {
		confidences[i] = string(c)
	}

	field := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"field_id": {
				Type:   genai.TypeString,
				Format: "enum",
				Enum:   append([]string(nil), fieldIDs...),
			},
			"field_name": {Type: genai.TypeString},
			"value": {
				Type:        genai.TypeNumber,
				Description: "Amount in thousands of the reporting currency. Deductions are positive magnitudes.",
			},
			"reasoning": {Type: genai.TypeString},
			"citations": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
			"confidence": {
				Type:   genai.TypeString,
				Format: "enum",
				Enum:   confidences,
			},
		},
		Required: []string{"field_id", "field_name", "value", "reasoning", "citations", "confidence"},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"fields": {
				Type:        genai.TypeArray,
				Description: "Exactly one entry per template field.",
				Items:       field,
			},
			"narrative": {Type: genai.TypeString},
			"warnings": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"fields", "narrative", "warnings"},
	}
}
