package models

import (
	"time"

	"github.com/google/uuid"
)

// TestScenario is a named reference scenario shipped with the service
type TestScenario struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Query       string        `json:"query"`
	Scenario    ScenarioInput `json:"scenario_data"`
}

// RetrievalSummary records how regulatory context was selected for a run
type RetrievalSummary struct {
	Method   string        `json:"method"`
	Strategy string        `json:"strategy"`
	Fallback bool          `json:"fallback"`
	Chunks   []ScoredChunk `json:"chunks"`
}

// ValidationSummary counts rule outcomes
type ValidationSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Report is the audit-ready output of one analysis run, consumed by renderers
type Report struct {
	RunID      uuid.UUID          `json:"run_id"`
	CreatedAt  time.Time          `json:"created_at"`
	Query      string             `json:"query"`
	Scenario   *ScenarioInput     `json:"scenario"`
	Retrieval  RetrievalSummary   `json:"retrieval"`
	Analysis   *AnalysisResult    `json:"analysis"`
	Validation []ValidationResult `json:"validation"`
	Summary    ValidationSummary  `json:"summary"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// Summarize counts passed and failed results
func Summarize(results []ValidationResult) ValidationSummary {
	s := ValidationSummary{Total: len(results)}
	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}
