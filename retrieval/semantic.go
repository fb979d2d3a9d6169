package retrieval

import (
	"context"
	"fmt"
	"math"
)

const cosineEpsilon = 1e-10

// SemanticStrategy scores chunks by cosine similarity between the query
// embedding and each chunk embedding. Every failure, including a failure to
// build the index, is reported as ErrEmbeddingUnavailable.
type SemanticStrategy struct {
	index    *EmbeddingIndex
	embedder Embedder
}

// NewSemanticStrategy creates a strategy over index, embedding queries with embedder
func NewSemanticStrategy(index *EmbeddingIndex, embedder Embedder) *SemanticStrategy {
	return &SemanticStrategy{index: index, embedder: embedder}
}

func (s *SemanticStrategy) Name() string {
	return string(MethodSemantic)
}

func (s *SemanticStrategy) Rank(ctx context.Context, query string) (*Ranking, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrEmbeddingUnavailable)
	}
	if err := s.index.Ensure(ctx); err != nil {
		return nil, err
	}

	q, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrEmbeddingUnavailable, err)
	}

	vectors := s.index.Vectors()
	scores := make([]float64, len(vectors))
	for i, v := range vectors {
		if len(v) != len(q) {
			return nil, fmt.Errorf("%w: query dimension %d, corpus dimension %d", ErrEmbeddingUnavailable, len(q), len(v))
		}
		scores[i] = Cosine(q, v)
	}
	return &Ranking{Strategy: s.Name(), Scores: scores}, nil
}

// Cosine returns the cosine similarity of a and b, which must have equal length
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	return dot / ((math.Sqrt(na) + cosineEpsilon) * (math.Sqrt(nb) + cosineEpsilon))
}
