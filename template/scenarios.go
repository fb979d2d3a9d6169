package template

import (
	"encoding/json"
	"fmt"
	"strings"

	"corep-assistant/data"
	"corep-assistant/models"
)

// ParseScenarios decodes a list of reference scenarios, validating each one
func ParseScenarios(raw []byte) ([]models.TestScenario, error) {
	var items []struct {
		Name         string          `json:"name"`
		Description  string          `json:"description"`
		Query        string          `json:"query"`
		ScenarioData json.RawMessage `json:"scenario_data"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to parse scenarios: %w", err)
	}

	scenarios := make([]models.TestScenario, 0, len(items))
	for _, item := range items {
		s, err := models.ParseScenario(item.ScenarioData)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", item.Name, err)
		}
		scenarios = append(scenarios, models.TestScenario{
			Name:        item.Name,
			Description: item.Description,
			Query:       item.Query,
			Scenario:    *s,
		})
	}
	return scenarios, nil
}

// DefaultScenarios returns the embedded reference scenarios
func DefaultScenarios() ([]models.TestScenario, error) {
	return ParseScenarios(data.TestScenarios)
}

// FindScenario looks a scenario up by case-insensitive name
func FindScenario(scenarios []models.TestScenario, name string) (models.TestScenario, bool) {
	for _, s := range scenarios {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return models.TestScenario{}, false
}
