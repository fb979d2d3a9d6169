package service

import (
	"context"
	"errors"
	"testing"

	"corep-assistant/gemini"
	"corep-assistant/models"
	"corep-assistant/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAnalysis(t *testing.T, g Generator) (*AnalysisService, *template.Template) {
	t.Helper()
	tmpl := defaultTemplate(t)
	return NewAnalysisService(AnalysisWithGenerator(g), AnalysisWithTemplate(tmpl)), tmpl
}

func analyzeRequest(t *testing.T) AnalyzeRequest {
	sc := scenarioByName(t, "Full Capital Stack")
	return AnalyzeRequest{Query: sc.Query, Scenario: &sc.Scenario}
}

func TestAnalyze_Success(t *testing.T) {
	tmpl := defaultTemplate(t)
	req := analyzeRequest(t)
	g := replying(payload(t, tmpl, template.ReferenceValues(req.Scenario), nil))
	svc := NewAnalysisService(AnalysisWithGenerator(g), AnalysisWithTemplate(tmpl))

	result, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, result.Fields, 16)
	assert.Equal(t, tmpl.FieldIDs()[0], result.Fields[0].FieldID)
	values := result.Values()
	assert.True(t, d("168000").Equal(values["r0010_c0010"]))
	assert.True(t, d("138000").Equal(values["r0030_c0010"]))
	assert.Equal(t, models.ConfidenceHigh, result.Fields[0].Confidence)
	assert.NotNil(t, result.Warnings)

	require.Len(t, g.requests, 1)
	sent := g.requests[0]
	assert.Equal(t, int32(DefaultMaxOutputTokens), sent.MaxOutputTokens)
	assert.InDelta(t, DefaultTemperature, sent.Temperature, 1e-6)
	assert.Equal(t, SystemInstruction, sent.SystemInstruction)
	assert.Contains(t, sent.Prompt, req.Query)
	require.NotNil(t, sent.Schema)
	assert.Equal(t, tmpl.FieldIDs(), sent.Schema.Properties["fields"].Items.Properties["field_id"].Enum)
}

func TestAnalyze_FieldsReturnedInTemplateOrder(t *testing.T) {
	tmpl := defaultTemplate(t)
	req := analyzeRequest(t)
	text := payload(t, tmpl, template.ReferenceValues(req.Scenario), func(doc map[string]any) {
		fields := doc["fields"].([]any)
		for i, j := 0, len(fields)-1; i < j; i, j = i+1, j-1 {
			fields[i], fields[j] = fields[j], fields[i]
		}
	})
	svc, _ := newAnalysis(t, replying(text))

	result, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	for i, id := range tmpl.FieldIDs() {
		assert.Equal(t, id, result.Fields[i].FieldID)
	}
}

func TestAnalyze_RetriesOnceOnTruncation(t *testing.T) {
	tmpl := defaultTemplate(t)
	req := analyzeRequest(t)
	full := payload(t, tmpl, template.ReferenceValues(req.Scenario), nil)

	g := &fakeGenerator{responses: []fakeResponse{
		{resp: &gemini.GenerateResponse{Text: full[:len(full)/2], FinishReason: "MAX_TOKENS", Truncated: true}},
		{resp: &gemini.GenerateResponse{Text: full, FinishReason: "STOP"}},
	}}
	svc, _ := newAnalysis(t, g)

	result, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, result.Fields, 16)

	require.Len(t, g.requests, 2)
	assert.Equal(t, int32(16384), g.requests[0].MaxOutputTokens)
	assert.Equal(t, int32(32768), g.requests[1].MaxOutputTokens)
	assert.Equal(t, g.requests[0].Prompt, g.requests[1].Prompt)
}

func TestAnalyze_IncompleteDocumentCountsAsTruncation(t *testing.T) {
	tmpl := defaultTemplate(t)
	req := analyzeRequest(t)
	full := payload(t, tmpl, template.ReferenceValues(req.Scenario), nil)

	g := replying(full[:100], full)
	svc, _ := newAnalysis(t, g)

	_, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, g.requests, 2)
}

func TestAnalyze_SecondTruncationIsFatal(t *testing.T) {
	g := &fakeGenerator{responses: []fakeResponse{
		{resp: &gemini.GenerateResponse{Text: `{"fields":[{"field_id":"r00`, Truncated: true}},
	}}
	svc, _ := newAnalysis(t, g)

	_, err := svc.Analyze(context.Background(), analyzeRequest(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysisTruncated)

	var aerr *AnalysisError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, StageRetry, aerr.Stage)
	assert.Equal(t, int32(32768), aerr.MaxOutputTokens)
	assert.Len(t, g.requests, 2)
}

func TestAnalyze_AcceptsCompletePayloadFlaggedTruncated(t *testing.T) {
	tmpl := defaultTemplate(t)
	req := analyzeRequest(t)
	g := &fakeGenerator{responses: []fakeResponse{
		{resp: &gemini.GenerateResponse{Text: payload(t, tmpl, template.ReferenceValues(req.Scenario), nil), Truncated: true}},
	}}
	svc, _ := newAnalysis(t, g)

	_, err := svc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, g.requests, 1)
}

func TestAnalyze_SchemaViolations(t *testing.T) {
	tmpl := defaultTemplate(t)
	req := analyzeRequest(t)
	values := template.ReferenceValues(req.Scenario)

	field := func(doc map[string]any, i int) map[string]any {
		return doc["fields"].([]any)[i].(map[string]any)
	}

	tests := []struct {
		name   string
		mutate func(doc map[string]any)
		raw    string
	}{
		{name: "unknown top-level key", mutate: func(doc map[string]any) { doc["summary"] = "x" }},
		{name: "unknown field key", mutate: func(doc map[string]any) { field(doc, 0)["unit"] = "GBP" }},
		{name: "missing field", mutate: func(doc map[string]any) { doc["fields"] = doc["fields"].([]any)[1:] }},
		{name: "extra field", mutate: func(doc map[string]any) { doc["fields"] = append(doc["fields"].([]any), field(doc, 0)) }},
		{name: "duplicate field id", mutate: func(doc map[string]any) { field(doc, 1)["field_id"] = field(doc, 0)["field_id"] }},
		{name: "unknown field id", mutate: func(doc map[string]any) { field(doc, 0)["field_id"] = "r9999_c0010" }},
		{name: "row code without column", mutate: func(doc map[string]any) { field(doc, 0)["field_id"] = "r0010" }},
		{name: "bad confidence", mutate: func(doc map[string]any) { field(doc, 2)["confidence"] = "certain" }},
		{name: "string value", mutate: func(doc map[string]any) { field(doc, 3)["value"] = "100" }},
		{name: "null value", mutate: func(doc map[string]any) { field(doc, 3)["value"] = nil }},
		{name: "missing value", mutate: func(doc map[string]any) { delete(field(doc, 3), "value") }},
		{name: "missing citations", mutate: func(doc map[string]any) { delete(field(doc, 4), "citations") }},
		{name: "missing narrative", mutate: func(doc map[string]any) { delete(doc, "narrative") }},
		{name: "missing warnings", mutate: func(doc map[string]any) { delete(doc, "warnings") }},
		{name: "trailing data", raw: payload(t, tmpl, values, nil) + `{}`},
		{name: "not an object", raw: `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := tt.raw
			if text == "" {
				text = payload(t, tmpl, values, tt.mutate)
			}
			g := replying(text)
			svc, _ := newAnalysis(t, g)

			_, err := svc.Analyze(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSchemaViolation)

			var aerr *AnalysisError
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, StageInitial, aerr.Stage)
			assert.Len(t, g.requests, 1, "schema violations are not retried")
		})
	}
}

func TestAnalyze_TransportErrorNotRetried(t *testing.T) {
	g := &fakeGenerator{responses: []fakeResponse{{err: gemini.ErrTimeout}}}
	svc, _ := newAnalysis(t, g)

	_, err := svc.Analyze(context.Background(), analyzeRequest(t))
	assert.ErrorIs(t, err, gemini.ErrTimeout)

	var aerr *AnalysisError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, StageInitial, aerr.Stage)
	assert.Len(t, g.requests, 1)
}

func TestAnalyze_MisconfiguredService(t *testing.T) {
	_, err := NewAnalysisService(AnalysisWithTemplate(defaultTemplate(t))).Analyze(context.Background(), analyzeRequest(t))
	assert.ErrorIs(t, err, ErrGeneratorNotSet)

	_, err = NewAnalysisService(AnalysisWithGenerator(replying("{}"))).Analyze(context.Background(), analyzeRequest(t))
	assert.ErrorIs(t, err, ErrTemplateNotSet)

	svc, _ := newAnalysis(t, replying("{}"))
	_, err = svc.Analyze(context.Background(), AnalyzeRequest{Query: " "})
	assert.ErrorIs(t, err, models.ErrInvalidScenarioInput)
}

func TestAnalyze_CustomBudget(t *testing.T) {
	g := &fakeGenerator{responses: []fakeResponse{{resp: &gemini.GenerateResponse{Truncated: true}}}}
	svc := NewAnalysisService(
		AnalysisWithGenerator(g),
		AnalysisWithTemplate(defaultTemplate(t)),
		AnalysisWithMaxOutputTokens(1000),
		AnalysisWithTemperature(0.5),
	)

	_, err := svc.Analyze(context.Background(), analyzeRequest(t))
	assert.True(t, errors.Is(err, ErrAnalysisTruncated))
	require.Len(t, g.requests, 2)
	assert.Equal(t, int32(1000), g.requests[0].MaxOutputTokens)
	assert.Equal(t, int32(2000), g.requests[1].MaxOutputTokens)
	assert.InDelta(t, 0.5, g.requests[0].Temperature, 1e-6)
}

func TestBuildPrompt(t *testing.T) {
	tmpl := defaultTemplate(t)
	sc := scenarioByName(t, "Deductions")
	chunks := []models.ScoredChunk{{
		Chunk: models.RegulatoryChunk{ID: "crr-art-36-1-b", Text: "Institutions shall deduct goodwill.", Source: "CRR", Section: "Article 36(1)(b)"},
		Score: 4,
	}}

	prompt := BuildPrompt(sc.Query, &sc.Scenario, chunks, tmpl)

	assert.Contains(t, prompt, sc.Query)
	assert.Contains(t, prompt, "goodwill: 8000")
	assert.Contains(t, prompt, "[CRR, Article 36(1)(b)]")
	assert.Contains(t, prompt, "TEMPLATE FIELDS TO POPULATE (C 01.00 - Own Funds):")
	assert.NotContains(t, prompt, "\u2014")
	assert.Contains(t, prompt, "Institutions shall deduct goodwill.")
	for _, id := range tmpl.FieldIDs() {
		assert.Contains(t, prompt, id)
	}
	for _, r := range tmpl.Rules {
		assert.Contains(t, prompt, r.RuleID+": "+r.Expression)
	}
	assert.Contains(t, prompt, "(formula: r0020 + r0500)")
	assert.Contains(t, prompt, "(deduction, report as positive)")
}
