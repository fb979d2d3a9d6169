package service

import (
	"context"
	"encoding/json"
	"testing"

	"corep-assistant/gemini"
	"corep-assistant/models"
	"corep-assistant/template"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeResponse struct {
	resp *gemini.GenerateResponse
	err  error
}

// fakeGenerator replays canned responses; the last one repeats
type fakeGenerator struct {
	responses []fakeResponse
	requests  []gemini.GenerateRequest
}

func (f *fakeGenerator) Generate(ctx context.Context, req gemini.GenerateRequest) (*gemini.GenerateResponse, error) {
	f.requests = append(f.requests, req)
	r := f.responses[min(len(f.requests), len(f.responses))-1]
	return r.resp, r.err
}

func replying(texts ...string) *fakeGenerator {
	g := &fakeGenerator{}
	for _, text := range texts {
		g.responses = append(g.responses, fakeResponse{resp: &gemini.GenerateResponse{Text: text, FinishReason: "STOP"}})
	}
	return g
}

func defaultTemplate(t *testing.T) *template.Template {
	t.Helper()
	tmpl, err := template.Default()
	require.NoError(t, err)
	return tmpl
}

// payload renders a schema-conforming response for values; mutate may alter
// the decoded document before it is encoded
func payload(t *testing.T, tmpl *template.Template, values map[string]decimal.Decimal, mutate func(doc map[string]any)) string {
	t.Helper()
	fields := make([]any, 0, len(tmpl.Fields))
	for _, f := range tmpl.Fields {
		fields = append(fields, map[string]any{
			"field_id":   f.FieldID,
			"field_name": f.Name,
			"value":      json.Number(values[f.FieldID].String()),
			"reasoning":  "Derived from the scenario using " + f.CRRReference,
			"citations":  []string{f.CRRReference},
			"confidence": "high",
		})
	}
	doc := map[string]any{
		"fields":    fields,
		"narrative": "Own funds computed from the scenario.",
		"warnings":  []string{},
	}
	if mutate != nil {
		mutate(doc)
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(raw)
}

func scenarioByName(t *testing.T, name string) models.TestScenario {
	t.Helper()
	scenarios, err := template.DefaultScenarios()
	require.NoError(t, err)
	s, ok := template.FindScenario(scenarios, name)
	require.True(t, ok, name)
	return s
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
