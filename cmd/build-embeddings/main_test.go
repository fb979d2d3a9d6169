package main

import (
	"context"
	"path/filepath"
	"testing"

	"corep-assistant/app"
	"corep-assistant/config"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:             "8080",
		MaxOutputTokens:  16384,
		Temperature:      0.2,
		RetrievalTopK:    6,
		RetrievalMode:    "auto",
		CorpusSource:     config.CorpusSourceFile,
		StorageType:      "local",
		StorageLocalPath: t.TempDir(),
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

func TestRun_WithoutEmbedderReturnsError(t *testing.T) {
	err := run(context.Background(), testConfig(t), zap.NewNop(), false)
	assert.ErrorIs(t, err, app.ErrNoEmbedder)
}

func TestRun_InitFailureReturnsError(t *testing.T) {
	cfg := testConfig(t)
	cfg.CorpusPath = filepath.Join(t.TempDir(), "missing.json")

	err := run(context.Background(), cfg, zap.NewNop(), true)
	assert.ErrorContains(t, err, "failed to initialize application")
}
