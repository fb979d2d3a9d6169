// Package app wires the corpus, model client, retrieval, analysis and
// validation components from a Config. The server and CLI binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"corep-assistant/config"
	"corep-assistant/corpus"
	"corep-assistant/gemini"
	"corep-assistant/models"
	"corep-assistant/repository"
	"corep-assistant/retrieval"
	"corep-assistant/service"
	"corep-assistant/storage"
	"corep-assistant/template"
	"corep-assistant/validation"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the assembled components
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Corpus    *corpus.Corpus
	Template  *template.Template
	Scenarios []models.TestScenario
	Validator *validation.Validator
	Storage   storage.Storage
	Index     *retrieval.EmbeddingIndex
	Retriever *retrieval.Retriever
	Analysis  *service.AnalysisService
	Reports   *service.ReportService

	gemini *gemini.Client
	db     *pgxpool.Pool
}

// New builds an App. A missing API key is not fatal: retrieval degrades to
// keyword ranking and analysis reports the model as unavailable.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	var err error
	if a.Template, err = template.Default(); err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	if a.Scenarios, err = template.DefaultScenarios(); err != nil {
		return nil, fmt.Errorf("failed to load scenarios: %w", err)
	}
	a.Validator = validation.NewValidator()

	if a.Corpus, err = a.loadCorpus(ctx); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("corpus loaded",
		zap.String("source", cfg.CorpusSource),
		zap.Int("chunks", a.Corpus.Len()),
	)

	a.Storage, err = storage.NewStorage(ctx, storage.StorageConfig{
		Type:         storage.StorageType(cfg.StorageType),
		LocalPath:    cfg.StorageLocalPath,
		S3Bucket:     cfg.S3Bucket,
		S3Region:     cfg.S3Region,
		S3Prefix:     cfg.S3Prefix,
		AWSAccessKey: cfg.AWSAccessKey,
		AWSSecretKey: cfg.AWSSecretKey,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	retrieverOpts := []retrieval.RetrieverOption{
		retrieval.RetrieverWithTopK(cfg.RetrievalTopK),
		retrieval.RetrieverWithDefaultMethod(retrieval.Method(cfg.RetrievalMode)),
		retrieval.RetrieverWithLogger(logger),
	}
	analysisOpts := []service.AnalysisServiceOption{
		service.AnalysisWithTemplate(a.Template),
		service.AnalysisWithLogger(logger),
		service.AnalysisWithMaxOutputTokens(cfg.MaxOutputTokens),
		service.AnalysisWithTemperature(cfg.Temperature),
	}

	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, semantic retrieval and analysis are unavailable")
	} else {
		a.gemini, err = gemini.NewClient(ctx, gemini.Config{
			APIKey:          cfg.GeminiAPIKey,
			ChatModel:       cfg.ChatModel,
			EmbedModel:      cfg.EmbedModel,
			EmbedTimeout:    cfg.EmbedTimeout,
			GenerateTimeout: cfg.GenerateTimeout,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize Gemini: %w", err)
		}
		logger.Info("Gemini client initialized",
			zap.String("chat_model", a.gemini.ChatModel()),
			zap.String("embed_model", a.gemini.EmbedModel()),
		)

		a.Index = retrieval.NewEmbeddingIndex(a.Corpus, a.gemini,
			retrieval.IndexWithStorage(a.Storage),
			retrieval.IndexWithModel(a.gemini.EmbedModel()),
			retrieval.IndexWithLogger(logger),
		)
		retrieverOpts = append(retrieverOpts,
			retrieval.RetrieverWithSemantic(retrieval.NewSemanticStrategy(a.Index, a.gemini)))
		analysisOpts = append(analysisOpts, service.AnalysisWithGenerator(a.gemini))
	}

	a.Retriever = retrieval.NewRetriever(a.Corpus, retrieverOpts...)
	a.Analysis = service.NewAnalysisService(analysisOpts...)
	a.Reports = service.NewReportService(
		service.ReportWithRetriever(a.Retriever),
		service.ReportWithAnalyzer(a.Analysis),
		service.ReportWithValidator(a.Validator),
		service.ReportWithLogger(logger),
	)
	return a, nil
}

func (a *App) loadCorpus(ctx context.Context) (*corpus.Corpus, error) {
	switch a.Config.CorpusSource {
	case config.CorpusSourcePostgres:
		pool, err := pgxpool.New(ctx, a.Config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		a.db = pool
		c, err := corpus.Load(ctx, repository.NewRegulatoryChunkRepository(pool))
		if err != nil {
			return nil, fmt.Errorf("failed to load corpus from database: %w", err)
		}
		return c, nil
	default:
		if a.Config.CorpusPath == "" {
			return corpus.Default()
		}
		return corpus.LoadFile(a.Config.CorpusPath)
	}
}

// ErrNoEmbedder is returned by WarmIndex when no API key is configured
var ErrNoEmbedder = errors.New("embedding index requires GEMINI_API_KEY")

// WarmIndex loads or builds the embedding cache. force discards any cached
// vectors first.
func (a *App) WarmIndex(ctx context.Context, force bool) error {
	if a.Index == nil {
		return ErrNoEmbedder
	}
	if force {
		return a.Index.Rebuild(ctx)
	}
	return a.Index.Ensure(ctx)
}

// Close releases the model client and database pool
func (a *App) Close() {
	if a.gemini != nil {
		if err := a.gemini.Close(); err != nil {
			a.Logger.Warn("failed to close Gemini client", zap.Error(err))
		}
		a.gemini = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}
