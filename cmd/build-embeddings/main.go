package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"corep-assistant/app"
	"corep-assistant/config"
	"corep-assistant/logging"

	"go.uber.org/zap"
)

func main() {
	force := flag.Bool("force", false, "discard cached vectors and re-embed the whole corpus")
	flag.Parse()

	config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if err := run(context.Background(), cfg, logger, *force); err != nil {
		logger.Error("Failed to build embedding index", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, force bool) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer a.Close()

	if err := a.WarmIndex(ctx, force); err != nil {
		return err
	}

	vectors := a.Index.Vectors()
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	fmt.Printf("\n✅ Embedding index ready: %d chunks, dimension %d, model %s\n", len(vectors), dim, cfg.EmbedModel)
	return nil
}
