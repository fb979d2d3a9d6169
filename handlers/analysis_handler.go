package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"corep-assistant/gemini"
	"corep-assistant/models"
	"corep-assistant/retrieval"
	"corep-assistant/service"
	"corep-assistant/template"
	"corep-assistant/validation"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AnalysisHandler handles HTTP requests for retrieval, validation and analysis
type AnalysisHandler struct {
	retriever service.Retriever
	reports   *service.ReportService
	validator *validation.Validator
	template  *template.Template
	scenarios []models.TestScenario
	logger    *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(
	retriever service.Retriever,
	reports *service.ReportService,
	validator *validation.Validator,
	tmpl *template.Template,
	scenarios []models.TestScenario,
	logger *zap.Logger,
) *AnalysisHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validator == nil {
		validator = validation.NewValidator()
	}
	return &AnalysisHandler{
		retriever: retriever,
		reports:   reports,
		validator: validator,
		template:  tmpl,
		scenarios: scenarios,
		logger:    logger,
	}
}

// GetTemplate handles GET /api/template
func (h *AnalysisHandler) GetTemplate(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.template,
	})
}

// ListScenarios handles GET /api/scenarios
func (h *AnalysisHandler) ListScenarios(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.scenarios,
	})
}

// RetrieveRequest represents the request body for a retrieval
type RetrieveRequest struct {
	Query  string `json:"query" binding:"required"`
	Method string `json:"method"`
	TopK   int    `json:"top_k" binding:"gte=0,lte=50"`
}

// Retrieve handles POST /api/retrieve
func (h *AnalysisHandler) Retrieve(c *gin.Context) {
	var req RetrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	method, err := parseMethod(req.Method)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.retriever.Retrieve(c.Request.Context(), req.Query, method, req.TopK)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// ValidateRequest represents the request body for a validation
type ValidateRequest struct {
	Fields map[string]decimal.Decimal `json:"fields" binding:"required"`
}

// Validate handles POST /api/validate
func (h *AnalysisHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	results := h.validator.Validate(req.Fields)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"results": results,
			"summary": models.Summarize(results),
		},
	})
}

// AnalyzeRequest represents the request body for an analysis. Either
// scenario or scenario_name must be given; the query defaults to the named
// scenario's query.
type AnalyzeRequest struct {
	Query        string          `json:"query"`
	Scenario     json.RawMessage `json:"scenario"`
	ScenarioName string          `json:"scenario_name"`
	Method       string          `json:"method"`
	TopK         int             `json:"top_k" binding:"gte=0,lte=50"`
}

// Analyze handles POST /api/analyze
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	method, err := parseMethod(req.Method)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	var scenario *models.ScenarioInput
	query := req.Query
	switch {
	case len(req.Scenario) > 0 && string(req.Scenario) != "null":
		scenario, err = models.ParseScenario(req.Scenario)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_SCENARIO", err.Error())
			return
		}
	case req.ScenarioName != "":
		named, ok := template.FindScenario(h.scenarios, req.ScenarioName)
		if !ok {
			respondError(c, http.StatusNotFound, "SCENARIO_NOT_FOUND", "No reference scenario named "+req.ScenarioName)
			return
		}
		scenario = &named.Scenario
		if strings.TrimSpace(query) == "" {
			query = named.Query
		}
	default:
		respondError(c, http.StatusBadRequest, "INVALID_SCENARIO", "scenario or scenario_name is required")
		return
	}

	report, err := h.reports.Run(c.Request.Context(), service.RunRequest{
		Query:    query,
		Scenario: scenario,
		Method:   method,
		TopK:     req.TopK,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    report,
	})
}

// parseMethod leaves an omitted method empty so the retriever default applies
func parseMethod(s string) (retrieval.Method, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return retrieval.ParseMethod(s)
}

// respondServiceError maps pipeline errors to status codes
func (h *AnalysisHandler) respondServiceError(c *gin.Context, err error) {
	var aerr *service.AnalysisError
	stage := ""
	if errors.As(err, &aerr) {
		stage = aerr.Stage
	}

	status, code := http.StatusInternalServerError, "ANALYSIS_FAILED"
	message := err.Error()
	switch {
	case errors.Is(err, models.ErrInvalidScenarioInput):
		status, code = http.StatusBadRequest, "INVALID_SCENARIO"
	case errors.Is(err, retrieval.ErrEmptyQuery), errors.Is(err, retrieval.ErrUnknownMethod):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, service.ErrGeneratorNotSet), errors.Is(err, retrieval.ErrEmbeddingUnavailable):
		status, code = http.StatusServiceUnavailable, "MODEL_UNAVAILABLE"
	case errors.Is(err, gemini.ErrTimeout):
		status, code = http.StatusGatewayTimeout, "MODEL_TIMEOUT"
	case errors.Is(err, service.ErrAnalysisTruncated):
		status, code = http.StatusBadGateway, "ANALYSIS_TRUNCATED"
		message += ". The model output was cut off twice; retry the request, ideally with a shorter query or fewer chunks"
	case errors.Is(err, service.ErrSchemaViolation):
		status, code = http.StatusBadGateway, "SCHEMA_VIOLATION"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("code", code), zap.String("stage", stage), zap.Error(err))
	}

	body := gin.H{
		"code":    code,
		"message": message,
	}
	if stage != "" {
		body["stage"] = stage
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   body,
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
