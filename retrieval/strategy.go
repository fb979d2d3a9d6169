// Package retrieval ranks corpus chunks against a free-text query.
//
// Ranking is done by interchangeable strategies that score every chunk in
// corpus order. The auto method composes the semantic strategy with the
// keyword strategy and falls back on ErrEmbeddingUnavailable.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrEmbeddingUnavailable is returned when the embedding call fails or times out
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// ErrUnknownMethod is returned for an unrecognised retrieval method
var ErrUnknownMethod = errors.New("unknown retrieval method")

// Method selects the ranking strategy for a retrieval
type Method string

const (
	MethodAuto     Method = "auto"
	MethodSemantic Method = "semantic"
	MethodKeyword  Method = "keyword"
)

// ParseMethod parses a method name; empty means auto
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodAuto, nil
	case MethodAuto, MethodSemantic, MethodKeyword:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Ranking holds one score per corpus chunk, in corpus order
type Ranking struct {
	Strategy string
	Scores   []float64
	Fallback bool
	Warnings []string
}

// Strategy scores every chunk of the corpus against a query
type Strategy interface {
	Name() string
	Rank(ctx context.Context, query string) (*Ranking, error)
}

// FallbackStrategy ranks with a primary strategy and switches to the
// secondary one when the primary reports ErrEmbeddingUnavailable.
// Any other error from the primary is returned unchanged.
type FallbackStrategy struct {
	primary   Strategy
	secondary Strategy
	logger    *zap.Logger
}

// NewFallbackStrategy composes primary and secondary
func NewFallbackStrategy(primary, secondary Strategy, logger *zap.Logger) *FallbackStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackStrategy{primary: primary, secondary: secondary, logger: logger}
}

func (s *FallbackStrategy) Name() string {
	return string(MethodAuto)
}

func (s *FallbackStrategy) Rank(ctx context.Context, query string) (*Ranking, error) {
	ranking, err := s.primary.Rank(ctx, query)
	if err == nil {
		return ranking, nil
	}
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		return nil, err
	}

	s.logger.Warn("semantic retrieval unavailable, falling back",
		zap.String("primary", s.primary.Name()),
		zap.String("fallback", s.secondary.Name()),
		zap.Error(err),
	)

	ranking, ferr := s.secondary.Rank(ctx, query)
	if ferr != nil {
		return nil, fmt.Errorf("fallback %s ranking failed: %w", s.secondary.Name(), ferr)
	}
	ranking.Fallback = true
	ranking.Warnings = append(ranking.Warnings,
		fmt.Sprintf("%s retrieval unavailable (%v); results ranked by %s matching", s.primary.Name(), err, s.secondary.Name()))
	return ranking, nil
}

// unavailableStrategy stands in for the semantic strategy when no embedder is configured
type unavailableStrategy struct {
	reason string
}

func (s unavailableStrategy) Name() string {
	return string(MethodSemantic)
}

func (s unavailableStrategy) Rank(ctx context.Context, query string) (*Ranking, error) {
	return nil, fmt.Errorf("%w: %s", ErrEmbeddingUnavailable, s.reason)
}
