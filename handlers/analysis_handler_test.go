package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"corep-assistant/corpus"
	"corep-assistant/gemini"
	"corep-assistant/models"
	"corep-assistant/retrieval"
	"corep-assistant/service"
	"corep-assistant/template"
	"corep-assistant/validation"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubGenerator answers every call with the same text or error
type stubGenerator struct {
	text      string
	truncated bool
	err       error
	calls     int
}

func (g *stubGenerator) Generate(ctx context.Context, req gemini.GenerateRequest) (*gemini.GenerateResponse, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &gemini.GenerateResponse{Text: g.text, Truncated: g.truncated}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Stage   string `json:"stage"`
	} `json:"error"`
}

type fixture struct {
	router    *gin.Engine
	template  *template.Template
	scenarios []models.TestScenario
}

func newFixture(t *testing.T, gen service.Generator) fixture {
	t.Helper()
	c, err := corpus.Default()
	require.NoError(t, err)
	tmpl, err := template.Default()
	require.NoError(t, err)
	scenarios, err := template.DefaultScenarios()
	require.NoError(t, err)

	retriever := retrieval.NewRetriever(c)
	validator := validation.NewValidator()
	opts := []service.AnalysisServiceOption{service.AnalysisWithTemplate(tmpl)}
	if gen != nil {
		opts = append(opts, service.AnalysisWithGenerator(gen))
	}
	reports := service.NewReportService(
		service.ReportWithRetriever(retriever),
		service.ReportWithAnalyzer(service.NewAnalysisService(opts...)),
		service.ReportWithValidator(validator),
	)

	h := NewAnalysisHandler(retriever, reports, validator, tmpl, scenarios, nil)
	return fixture{router: NewRouter(h, nil), template: tmpl, scenarios: scenarios}
}

func (f fixture) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	if path != "/health" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func (f fixture) scenario(t *testing.T, name string) models.TestScenario {
	t.Helper()
	s, ok := template.FindScenario(f.scenarios, name)
	require.True(t, ok)
	return s
}

// referencePayload renders a conforming model response for a scenario
func referencePayload(t *testing.T, tmpl *template.Template, s *models.ScenarioInput) string {
	t.Helper()
	values := template.ReferenceValues(s)
	fields := make([]map[string]any, 0, len(tmpl.Fields))
	for _, f := range tmpl.Fields {
		fields = append(fields, map[string]any{
			"field_id":   f.FieldID,
			"field_name": f.Name,
			"value":      json.Number(values[f.FieldID].String()),
			"reasoning":  "direct mapping",
			"citations":  []string{f.CRRReference},
			"confidence": "high",
		})
	}
	raw, err := json.Marshal(map[string]any{"fields": fields, "narrative": "n", "warnings": []string{}})
	require.NoError(t, err)
	return string(raw)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	code, _ := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestGetTemplateAndScenarios(t *testing.T) {
	f := newFixture(t, nil)

	code, env := f.do(t, http.MethodGet, "/api/template", nil)
	require.Equal(t, http.StatusOK, code)
	var tmpl template.Template
	require.NoError(t, json.Unmarshal(env.Data, &tmpl))
	assert.Len(t, tmpl.Fields, 16)
	assert.Len(t, tmpl.Rules, 6)

	code, env = f.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, code)
	var scenarios []models.TestScenario
	require.NoError(t, json.Unmarshal(env.Data, &scenarios))
	assert.Len(t, scenarios, 3)
}

func TestRetrieve(t *testing.T) {
	f := newFixture(t, nil)

	code, env := f.do(t, http.MethodPost, "/api/retrieve", gin.H{"query": "goodwill deduction r0200", "method": "keyword", "top_k": 3})
	require.Equal(t, http.StatusOK, code)
	var got retrieval.Retrieval
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Len(t, got.Results, 3)
	assert.Equal(t, "keyword", got.Strategy)
	assert.False(t, got.Fallback)

	code, env = f.do(t, http.MethodPost, "/api/retrieve", gin.H{"query": "goodwill"})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.True(t, got.Fallback)
	assert.Len(t, got.Results, retrieval.DefaultTopK)
}

func TestRetrieve_BadRequests(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		body any
		want int
		code string
	}{
		{"missing query", gin.H{"method": "keyword"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown method", gin.H{"query": "x", "method": "bm25"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"negative top_k", gin.H{"query": "x", "top_k": -1}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"semantic without embedder", gin.H{"query": "x", "method": "semantic"}, http.StatusServiceUnavailable, "MODEL_UNAVAILABLE"},
		{"malformed json", `{"query":`, http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := f.do(t, http.MethodPost, "/api/retrieve", tt.body)
			assert.Equal(t, tt.want, code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestValidate(t *testing.T) {
	f := newFixture(t, nil)
	s := f.scenario(t, "Full Capital Stack")
	values := template.ReferenceValues(&s.Scenario)

	code, env := f.do(t, http.MethodPost, "/api/validate", gin.H{"fields": values})
	require.Equal(t, http.StatusOK, code)
	var body struct {
		Results []models.ValidationResult `json:"results"`
		Summary models.ValidationSummary  `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, models.ValidationSummary{Total: 6, Passed: 6}, body.Summary)

	// failures are reported with a 200
	code, env = f.do(t, http.MethodPost, "/api/validate", `{"fields":{"r0010":-5,"r0020":-5}}`)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 2, body.Summary.Failed)
	assert.True(t, decimal.NewFromInt(-5).Equal(body.Results[4].Deviation))

	code, env = f.do(t, http.MethodPost, "/api/validate", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t, nil)
	s := f.scenario(t, "Deductions")
	gen := &stubGenerator{text: referencePayload(t, f.template, &s.Scenario)}
	f = newFixture(t, gen)

	code, env := f.do(t, http.MethodPost, "/api/analyze", gin.H{"query": s.Query, "scenario": s.Scenario})
	require.Equal(t, http.StatusOK, code, env.Error.Message)
	assert.True(t, env.Success)

	var report models.Report
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 6, report.Summary.Passed)
	assert.True(t, decimal.NewFromInt(81500).Equal(report.Analysis.Values()["r0030_c0010"]))
	assert.Equal(t, 1, gen.calls)

	// by reference scenario name, query taken from the scenario
	code, env = f.do(t, http.MethodPost, "/api/analyze", gin.H{"scenario_name": "deductions", "method": "keyword"})
	require.Equal(t, http.StatusOK, code, env.Error.Message)
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, s.Query, report.Query)
	assert.Equal(t, "keyword", report.Retrieval.Strategy)
}

func TestAnalyze_Errors(t *testing.T) {
	valid := `{"bank_name":"Test","reporting_date":"2025-12-31","currency":"GBP","share_capital_nominal":1000}`

	tests := []struct {
		name  string
		gen   *stubGenerator
		body  string
		want  int
		code  string
		stage string
		calls int
	}{
		{
			name: "unknown scenario key", gen: &stubGenerator{},
			body: `{"query":"q","scenario":{"share_capital":1000}}`,
			want: http.StatusBadRequest, code: "INVALID_SCENARIO",
		},
		{
			name: "negative amount", gen: &stubGenerator{},
			body: `{"query":"q","scenario":{"retained_earnings":-1}}`,
			want: http.StatusBadRequest, code: "INVALID_SCENARIO",
		},
		{
			name: "malformed amount", gen: &stubGenerator{},
			body: `{"query":"q","scenario":{"retained_earnings":"lots"}}`,
			want: http.StatusBadRequest, code: "INVALID_SCENARIO",
		},
		{
			name: "missing query", gen: &stubGenerator{},
			body: `{"scenario":` + valid + `}`,
			want: http.StatusBadRequest, code: "INVALID_SCENARIO",
		},
		{
			name: "missing scenario", gen: &stubGenerator{},
			body: `{"query":"q"}`,
			want: http.StatusBadRequest, code: "INVALID_SCENARIO",
		},
		{
			name: "unknown scenario name", gen: &stubGenerator{},
			body: `{"scenario_name":"Investment Bank"}`,
			want: http.StatusNotFound, code: "SCENARIO_NOT_FOUND",
		},
		{
			name: "model not configured", gen: nil,
			body: `{"query":"q","scenario":` + valid + `}`,
			want: http.StatusServiceUnavailable, code: "MODEL_UNAVAILABLE",
		},
		{
			name: "model timeout", gen: &stubGenerator{err: gemini.ErrTimeout},
			body: `{"query":"q","scenario":` + valid + `}`,
			want: http.StatusGatewayTimeout, code: "MODEL_TIMEOUT", stage: service.StageInitial, calls: 1,
		},
		{
			name: "truncated twice", gen: &stubGenerator{text: `{"fields":[`, truncated: true},
			body: `{"query":"q","scenario":` + valid + `}`,
			want: http.StatusBadGateway, code: "ANALYSIS_TRUNCATED", stage: service.StageRetry, calls: 2,
		},
		{
			name: "schema violation", gen: &stubGenerator{text: `{"fields":[],"narrative":"","warnings":[]}`},
			body: `{"query":"q","scenario":` + valid + `}`,
			want: http.StatusBadGateway, code: "SCHEMA_VIOLATION", stage: service.StageInitial, calls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gen service.Generator
			if tt.gen != nil {
				gen = tt.gen
			}
			f := newFixture(t, gen)

			code, env := f.do(t, http.MethodPost, "/api/analyze", tt.body)
			assert.Equal(t, tt.want, code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Equal(t, tt.stage, env.Error.Stage)
			if tt.gen != nil {
				assert.Equal(t, tt.calls, tt.gen.calls)
			}
		})
	}
}
