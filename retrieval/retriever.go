package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"corep-assistant/corpus"
	"corep-assistant/models"

	"go.uber.org/zap"
)

// DefaultTopK is the number of chunks returned when top_k is not set
const DefaultTopK = 6

// ErrEmptyQuery is returned when the query has no content
var ErrEmptyQuery = errors.New("query is required")

// Retrieval is the ranked outcome of one retrieve call
type Retrieval struct {
	Method   Method               `json:"method"`
	Strategy string               `json:"strategy"`
	Fallback bool                 `json:"fallback"`
	Warnings []string             `json:"warnings,omitempty"`
	Results  []models.ScoredChunk `json:"results"`
}

// Summary converts the retrieval to its report form
func (r *Retrieval) Summary() models.RetrievalSummary {
	return models.RetrievalSummary{
		Method:   string(r.Method),
		Strategy: r.Strategy,
		Fallback: r.Fallback,
		Chunks:   r.Results,
	}
}

// Retriever selects a strategy per call and returns the top-k chunks
type Retriever struct {
	corpus     *corpus.Corpus
	strategies map[Method]Strategy
	topK       int
	method     Method
	logger     *zap.Logger
}

// RetrieverOption configures a Retriever
type RetrieverOption func(*retrieverConfig)

type retrieverConfig struct {
	semantic Strategy
	topK     int
	method   Method
	logger   *zap.Logger
}

// RetrieverWithSemantic enables semantic ranking
func RetrieverWithSemantic(s Strategy) RetrieverOption {
	return func(c *retrieverConfig) {
		c.semantic = s
	}
}

// RetrieverWithTopK sets the default result count
func RetrieverWithTopK(k int) RetrieverOption {
	return func(c *retrieverConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// RetrieverWithDefaultMethod sets the method used when a call names none
func RetrieverWithDefaultMethod(m Method) RetrieverOption {
	return func(c *retrieverConfig) {
		if m != "" {
			c.method = m
		}
	}
}

// RetrieverWithLogger sets the logger
func RetrieverWithLogger(logger *zap.Logger) RetrieverOption {
	return func(c *retrieverConfig) {
		c.logger = logger
	}
}

// NewRetriever builds a retriever over c. Keyword ranking is always available;
// without a semantic strategy, auto degrades to keyword and semantic fails.
func NewRetriever(c *corpus.Corpus, opts ...RetrieverOption) *Retriever {
	cfg := retrieverConfig{topK: DefaultTopK, method: MethodAuto, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	keyword := NewKeywordStrategy(c)
	semantic := cfg.semantic
	if semantic == nil {
		semantic = unavailableStrategy{reason: "no embedder configured"}
	}

	return &Retriever{
		corpus: c,
		strategies: map[Method]Strategy{
			MethodKeyword:  keyword,
			MethodSemantic: semantic,
			MethodAuto:     NewFallbackStrategy(semantic, keyword, cfg.logger),
		},
		topK:   cfg.topK,
		method: cfg.method,
		logger: cfg.logger,
	}
}

// Retrieve ranks the corpus against query and returns at most topK chunks in
// descending score order. Equal scores keep corpus order. An empty method or
// topK <= 0 uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query string, method Method, topK int) (*Retrieval, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if method == "" {
		method = r.method
	}
	strategy, ok := r.strategies[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	if topK <= 0 {
		topK = r.topK
	}

	ranking, err := strategy.Rank(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(ranking.Scores) != r.corpus.Len() {
		return nil, fmt.Errorf("%s ranking returned %d scores for %d chunks", ranking.Strategy, len(ranking.Scores), r.corpus.Len())
	}

	results := TopK(r.corpus, ranking.Scores, topK)
	r.logger.Debug("retrieved chunks",
		zap.String("method", string(method)),
		zap.String("strategy", ranking.Strategy),
		zap.Bool("fallback", ranking.Fallback),
		zap.Int("results", len(results)),
	)

	return &Retrieval{
		Method:   method,
		Strategy: ranking.Strategy,
		Fallback: ranking.Fallback,
		Warnings: ranking.Warnings,
		Results:  results,
	}, nil
}

// TopK orders chunks by score, keeping corpus order among equal scores
func TopK(c *corpus.Corpus, scores []float64, k int) []models.ScoredChunk {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})

	k = min(k, len(order))
	results := make([]models.ScoredChunk, k)
	for i, idx := range order[:k] {
		results[i] = models.ScoredChunk{Chunk: c.Chunk(idx), Score: scores[idx]}
	}
	return results
}
