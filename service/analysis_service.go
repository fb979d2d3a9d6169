package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"corep-assistant/gemini"
	"corep-assistant/models"
	"corep-assistant/template"

	"go.uber.org/zap"
)

const (
	DefaultMaxOutputTokens = 16384
	DefaultTemperature     = 0.2

	StageInitial = "initial"
	StageRetry   = "retry"
)

var (
	ErrGeneratorNotSet   = errors.New("analysis model not configured")
	ErrTemplateNotSet    = errors.New("template not set")
	ErrAnalysisTruncated = errors.New("analysis response truncated")
	ErrSchemaViolation   = errors.New("analysis response does not match schema")
)

// AnalysisError reports which attempt of an analysis failed
type AnalysisError struct {
	Stage           string
	MaxOutputTokens int32
	Err             error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed at %s attempt (max_output_tokens=%d): %v", e.Stage, e.MaxOutputTokens, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Generator produces a structured model response
type Generator interface {
	Generate(ctx context.Context, req gemini.GenerateRequest) (*gemini.GenerateResponse, error)
}

// AnalysisService populates template fields from a scenario and retrieved
// regulatory text with one schema-constrained model call, retried once with a
// doubled output budget when the response is truncated.
type AnalysisService struct {
	generator       Generator
	template        *template.Template
	logger          *zap.Logger
	maxOutputTokens int32
	temperature     float32
}

// AnalysisServiceOption is a functional option for AnalysisService
type AnalysisServiceOption func(*AnalysisService)

// AnalysisWithGenerator sets the model client
func AnalysisWithGenerator(g Generator) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.generator = g
	}
}

// AnalysisWithTemplate sets the template definition
func AnalysisWithTemplate(t *template.Template) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.template = t
	}
}

// AnalysisWithLogger sets the logger
func AnalysisWithLogger(logger *zap.Logger) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.logger = logger
	}
}

// AnalysisWithMaxOutputTokens sets the output budget of the first attempt
func AnalysisWithMaxOutputTokens(n int32) AnalysisServiceOption {
	return func(s *AnalysisService) {
		if n > 0 {
			s.maxOutputTokens = n
		}
	}
}

// AnalysisWithTemperature sets the sampling temperature
func AnalysisWithTemperature(t float32) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.temperature = t
	}
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(opts ...AnalysisServiceOption) *AnalysisService {
	s := &AnalysisService{
		logger:          zap.NewNop(),
		maxOutputTokens: DefaultMaxOutputTokens,
		temperature:     DefaultTemperature,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available reports whether a model client is configured
func (s *AnalysisService) Available() bool {
	return s.generator != nil
}

// AnalyzeRequest is the input of one analysis
type AnalyzeRequest struct {
	Query    string
	Scenario *models.ScenarioInput
	Chunks   []models.ScoredChunk
}

// Analyze runs the model and returns a result with exactly one populated
// field per template field. Transport errors are returned without retry.
func (s *AnalysisService) Analyze(ctx context.Context, req AnalyzeRequest) (*models.AnalysisResult, error) {
	if s.generator == nil {
		return nil, ErrGeneratorNotSet
	}
	if s.template == nil {
		return nil, ErrTemplateNotSet
	}
	if strings.TrimSpace(req.Query) == "" || req.Scenario == nil {
		return nil, fmt.Errorf("%w: query and scenario are required", models.ErrInvalidScenarioInput)
	}

	prompt := BuildPrompt(req.Query, req.Scenario, req.Chunks, s.template)
	schema := gemini.AnalysisSchema(s.template.FieldIDs())

	attempts := []struct {
		stage  string
		budget int32
	}{
		{StageInitial, s.maxOutputTokens},
		{StageRetry, s.maxOutputTokens * 2},
	}

	for _, attempt := range attempts {
		resp, err := s.generator.Generate(ctx, gemini.GenerateRequest{
			SystemInstruction: SystemInstruction,
			Prompt:            prompt,
			Schema:            schema,
			MaxOutputTokens:   attempt.budget,
			Temperature:       s.temperature,
		})
		if err != nil {
			return nil, &AnalysisError{Stage: attempt.stage, MaxOutputTokens: attempt.budget, Err: err}
		}

		result, err := decodeAnalysis(resp.Text, s.template)
		if err == nil {
			if resp.Truncated {
				s.logger.Warn("accepting complete analysis reported as truncated",
					zap.String("stage", attempt.stage))
			}
			s.logger.Info("analysis complete",
				zap.String("stage", attempt.stage),
				zap.Int("fields", len(result.Fields)),
				zap.Int("warnings", len(result.Warnings)),
			)
			return result, nil
		}

		if !resp.Truncated && !errors.Is(err, errIncomplete) {
			return nil, &AnalysisError{
				Stage:           attempt.stage,
				MaxOutputTokens: attempt.budget,
				Err:             fmt.Errorf("%w: %v", ErrSchemaViolation, err),
			}
		}

		s.logger.Warn("analysis response truncated",
			zap.String("stage", attempt.stage),
			zap.Int32("max_output_tokens", attempt.budget),
			zap.String("finish_reason", resp.FinishReason),
			zap.Error(err),
		)
	}

	last := attempts[len(attempts)-1]
	return nil, &AnalysisError{Stage: last.stage, MaxOutputTokens: last.budget, Err: ErrAnalysisTruncated}
}
