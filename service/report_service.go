package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"corep-assistant/models"
	"corep-assistant/retrieval"
	"corep-assistant/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Retriever ranks regulatory text for a query
type Retriever interface {
	Retrieve(ctx context.Context, query string, method retrieval.Method, topK int) (*retrieval.Retrieval, error)
}

// Analyzer populates template fields
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*models.AnalysisResult, error)
}

// ReportService runs the full pipeline: ingress validation, retrieval,
// analysis and rule validation.
type ReportService struct {
	retriever Retriever
	analyzer  Analyzer
	validator *validation.Validator
	logger    *zap.Logger
}

// ReportServiceOption is a functional option for ReportService
type ReportServiceOption func(*ReportService)

// ReportWithRetriever sets the retriever
func ReportWithRetriever(r Retriever) ReportServiceOption {
	return func(s *ReportService) {
		s.retriever = r
	}
}

// ReportWithAnalyzer sets the analyzer
func ReportWithAnalyzer(a Analyzer) ReportServiceOption {
	return func(s *ReportService) {
		s.analyzer = a
	}
}

// ReportWithValidator sets the validator
func ReportWithValidator(v *validation.Validator) ReportServiceOption {
	return func(s *ReportService) {
		s.validator = v
	}
}

// ReportWithLogger sets the logger
func ReportWithLogger(logger *zap.Logger) ReportServiceOption {
	return func(s *ReportService) {
		s.logger = logger
	}
}

// NewReportService creates a new report service
func NewReportService(opts ...ReportServiceOption) *ReportService {
	s := &ReportService{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		s.validator = validation.NewValidator()
	}
	return s
}

// RunRequest is the input of one report run
type RunRequest struct {
	Query    string
	Scenario *models.ScenarioInput
	Method   retrieval.Method
	TopK     int
}

// Run produces a report. Input is validated before any retrieval or model
// call; rule failures are reported in the result, not as errors.
func (s *ReportService) Run(ctx context.Context, req RunRequest) (*models.Report, error) {
	if s.retriever == nil {
		return nil, errors.New("retriever not set")
	}
	if s.analyzer == nil {
		return nil, ErrGeneratorNotSet
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", models.ErrInvalidScenarioInput)
	}
	if req.Scenario == nil {
		return nil, fmt.Errorf("%w: scenario is required", models.ErrInvalidScenarioInput)
	}
	scenario := *req.Scenario
	scenario.ApplyDefaults()
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New()
	logger := s.logger.With(zap.String("run_id", runID.String()))

	retrieved, err := s.retriever.Retrieve(ctx, query, req.Method, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	logger.Info("retrieved regulatory context",
		zap.String("strategy", retrieved.Strategy),
		zap.Bool("fallback", retrieved.Fallback),
		zap.Int("chunks", len(retrieved.Results)),
	)

	result, err := s.analyzer.Analyze(ctx, AnalyzeRequest{
		Query:    query,
		Scenario: &scenario,
		Chunks:   retrieved.Results,
	})
	if err != nil {
		logger.Error("analysis failed", zap.Error(err))
		return nil, err
	}

	results := s.validator.Validate(result.Values())
	summary := models.Summarize(results)
	if summary.Failed > 0 {
		logger.Warn("validation rules failed", zap.Int("failed", summary.Failed))
	}

	return &models.Report{
		RunID:      runID,
		CreatedAt:  time.Now().UTC(),
		Query:      query,
		Scenario:   &scenario,
		Retrieval:  retrieved.Summary(),
		Analysis:   result,
		Validation: results,
		Summary:    summary,
		Warnings:   retrieved.Warnings,
	}, nil
}
