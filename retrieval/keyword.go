package retrieval

import (
	"context"
	"regexp"
	"strings"

	"corep-assistant/corpus"
)

// RowCodeBoost is the weight of a query row code found in a chunk's keywords
const RowCodeBoost = 3

var (
	tokenPattern   = regexp.MustCompile(`[\p{L}\p{N}]+`)
	rowCodePattern = regexp.MustCompile(`^r\d{4}$`)
)

// Tokenize splits text into the lowercase set of words longer than two runes
func Tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len([]rune(tok)) <= 2 {
			continue
		}
		tokens[tok] = struct{}{}
	}
	return tokens
}

// IsRowCode reports whether tok is a template row code such as r0040
func IsRowCode(tok string) bool {
	return rowCodePattern.MatchString(tok)
}

type keywordDoc struct {
	tokens   map[string]struct{}
	keywords map[string]struct{}
}

// KeywordStrategy scores chunks by token overlap with the query. Each distinct
// query token present in the chunk counts once, or RowCodeBoost times when it
// is a row code listed in the chunk's keywords. It performs no I/O.
type KeywordStrategy struct {
	docs []keywordDoc
}

// NewKeywordStrategy precomputes token sets for every chunk
func NewKeywordStrategy(c *corpus.Corpus) *KeywordStrategy {
	docs := make([]keywordDoc, c.Len())
	for i, chunk := range c.Chunks() {
		tokens := Tokenize(chunk.Text)
		keywords := make(map[string]struct{}, len(chunk.Keywords))
		for _, kw := range chunk.Keywords {
			keywords[strings.ToLower(strings.TrimSpace(kw))] = struct{}{}
			for tok := range Tokenize(kw) {
				tokens[tok] = struct{}{}
			}
		}
		docs[i] = keywordDoc{tokens: tokens, keywords: keywords}
	}
	return &KeywordStrategy{docs: docs}
}

func (s *KeywordStrategy) Name() string {
	return string(MethodKeyword)
}

func (s *KeywordStrategy) Rank(ctx context.Context, query string) (*Ranking, error) {
	queryTokens := Tokenize(query)
	scores := make([]float64, len(s.docs))
	for i, doc := range s.docs {
		for tok := range queryTokens {
			if _, ok := doc.tokens[tok]; !ok {
				continue
			}
			if _, kw := doc.keywords[tok]; kw && IsRowCode(tok) {
				scores[i] += RowCodeBoost
			} else {
				scores[i]++
			}
		}
	}
	return &Ranking{Strategy: s.Name(), Scores: scores}, nil
}
