// Package data embeds the static reference data the service ships with.
package data

import _ "embed"

// RegulatoryCorpus is the default corpus of regulatory text chunks (JSON)
//
//go:embed regulatory_corpus.json
var RegulatoryCorpus []byte

// TemplateC0100 is the C 01.00 field and rule definition (YAML)
//
//go:embed template_c0100.yaml
var TemplateC0100 []byte

// TestScenarios holds the reference scenarios (JSON)
//
//go:embed test_scenarios.json
var TestScenarios []byte
