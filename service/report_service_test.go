package service

import (
	"context"
	"testing"

	"corep-assistant/corpus"
	"corep-assistant/models"
	"corep-assistant/retrieval"
	"corep-assistant/template"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRetriever struct {
	inner Retriever
	calls int
}

func (r *countingRetriever) Retrieve(ctx context.Context, query string, method retrieval.Method, topK int) (*retrieval.Retrieval, error) {
	r.calls++
	return r.inner.Retrieve(ctx, query, method, topK)
}

func newRetriever(t *testing.T) *countingRetriever {
	t.Helper()
	c, err := corpus.Default()
	require.NoError(t, err)
	return &countingRetriever{inner: retrieval.NewRetriever(c)}
}

func newReportService(t *testing.T, g Generator, r Retriever) *ReportService {
	t.Helper()
	analysis := NewAnalysisService(AnalysisWithGenerator(g), AnalysisWithTemplate(defaultTemplate(t)))
	return NewReportService(ReportWithRetriever(r), ReportWithAnalyzer(analysis))
}

func TestRun_ReferenceScenarios(t *testing.T) {
	tests := []struct {
		name     string
		cet1     string
		tier1    string
		ownFunds string
	}{
		{"Simple Retail Bank", "100000", "100000", "100000"},
		{"Deductions", "81500", "81500", "81500"},
		{"Full Capital Stack", "138000", "150000", "168000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := scenarioByName(t, tt.name)
			tmpl := defaultTemplate(t)
			g := replying(payload(t, tmpl, template.ReferenceValues(&sc.Scenario), nil))
			svc := newReportService(t, g, newRetriever(t))

			report, err := svc.Run(context.Background(), RunRequest{Query: sc.Query, Scenario: &sc.Scenario})
			require.NoError(t, err)

			values := report.Analysis.Values()
			assert.True(t, d(tt.cet1).Equal(values["r0030_c0010"]), "CET1 %s", values["r0030_c0010"])
			assert.True(t, d(tt.tier1).Equal(values["r0020_c0010"]), "Tier 1 %s", values["r0020_c0010"])
			assert.True(t, d(tt.ownFunds).Equal(values["r0010_c0010"]), "own funds %s", values["r0010_c0010"])

			require.Len(t, report.Validation, 6)
			for _, r := range report.Validation {
				assert.True(t, r.Passed, r.RuleID)
			}
			assert.Equal(t, models.ValidationSummary{Total: 6, Passed: 6, Failed: 0}, report.Summary)

			assert.NotEqual(t, uuid.Nil, report.RunID)
			assert.False(t, report.CreatedAt.IsZero())
			assert.NotEmpty(t, report.Retrieval.Chunks)
			assert.LessOrEqual(t, len(report.Retrieval.Chunks), retrieval.DefaultTopK)
			assert.Equal(t, "auto", report.Retrieval.Method)
			assert.Equal(t, "keyword", report.Retrieval.Strategy)
			assert.True(t, report.Retrieval.Fallback)
			assert.NotEmpty(t, report.Warnings)

			// the retrieved text reaches the model
			assert.Contains(t, g.requests[0].Prompt, report.Retrieval.Chunks[0].Chunk.Text)
		})
	}
}

func TestRun_RuleFailuresAreData(t *testing.T) {
	sc := scenarioByName(t, "Full Capital Stack")
	values := template.ReferenceValues(&sc.Scenario)
	values["r0010_c0010"] = values["r0010_c0010"].Add(decimal.NewFromInt(100))

	svc := newReportService(t, replying(payload(t, defaultTemplate(t), values, nil)), newRetriever(t))

	report, err := svc.Run(context.Background(), RunRequest{Query: sc.Query, Scenario: &sc.Scenario})
	require.NoError(t, err)

	assert.False(t, report.Validation[0].Passed)
	assert.Equal(t, "V001", report.Validation[0].RuleID)
	assert.True(t, d("100").Equal(report.Validation[0].Deviation))
	assert.Equal(t, 1, report.Summary.Failed)
}

func TestRun_InvalidInputRejectedBeforeRetrieval(t *testing.T) {
	valid := scenarioByName(t, "Simple Retail Bank")

	negative := valid.Scenario
	negative.RetainedEarnings = decimal.NewFromInt(-1)

	badCurrency := valid.Scenario
	badCurrency.Currency = "pounds"

	tests := []struct {
		name string
		req  RunRequest
	}{
		{"empty query", RunRequest{Query: "  ", Scenario: &valid.Scenario}},
		{"missing scenario", RunRequest{Query: valid.Query}},
		{"negative amount", RunRequest{Query: valid.Query, Scenario: &negative}},
		{"bad currency", RunRequest{Query: valid.Query, Scenario: &badCurrency}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := replying("{}")
			r := newRetriever(t)
			svc := newReportService(t, g, r)

			_, err := svc.Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, models.ErrInvalidScenarioInput)
			assert.Equal(t, 0, r.calls)
			assert.Empty(t, g.requests)
		})
	}
}

func TestRun_DeductionsNormalised(t *testing.T) {
	sc := scenarioByName(t, "Deductions")
	signed := sc.Scenario
	signed.Goodwill = signed.Goodwill.Neg()

	g := replying(payload(t, defaultTemplate(t), template.ReferenceValues(&sc.Scenario), nil))
	svc := newReportService(t, g, newRetriever(t))

	report, err := svc.Run(context.Background(), RunRequest{Query: sc.Query, Scenario: &signed})
	require.NoError(t, err)
	assert.True(t, d("8000").Equal(report.Scenario.Goodwill))
	assert.True(t, signed.Goodwill.IsNegative(), "caller's scenario is not modified")
}

func TestRun_AnalysisErrorPropagates(t *testing.T) {
	sc := scenarioByName(t, "Simple Retail Bank")
	svc := newReportService(t, replying(`{"fields":[]}`), newRetriever(t))

	_, err := svc.Run(context.Background(), RunRequest{Query: sc.Query, Scenario: &sc.Scenario})
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

func TestRun_UnknownMethod(t *testing.T) {
	sc := scenarioByName(t, "Simple Retail Bank")
	svc := newReportService(t, replying("{}"), newRetriever(t))

	_, err := svc.Run(context.Background(), RunRequest{Query: sc.Query, Scenario: &sc.Scenario, Method: "fuzzy"})
	assert.ErrorIs(t, err, retrieval.ErrUnknownMethod)
}
