// Package relevance scores text against a query by fractional token overlap.
//
// The metric is deliberately lexical: no stemming, no embeddings. It ranks
// scraped content cheaply and deterministically; callers wanting semantic
// ranking can plug in their own Scorer.
package relevance

import "strings"

// Scorer scores arbitrary content against a query, returning a value in [0,1].
type Scorer interface {
	Score(content, query string) float64
}

// TokenOverlap scores by the fraction of query tokens found as substrings of
// the content. It is the default Scorer.
type TokenOverlap struct{}

// Score returns (query tokens present in content) / (total query tokens),
// case-insensitive, clamped to [0,1]. A query with no tokens scores 0.
func (TokenOverlap) Score(content, query string) float64 {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return 0
	}

	lowered := strings.ToLower(content)
	found := 0
	for _, tok := range tokens {
		if strings.Contains(lowered, tok) {
			found++
		}
	}

	score := float64(found) / float64(len(tokens))
	if score > 1 {
		score = 1
	}
	return score
}

// Tokenize splits a query into lowercase whitespace-delimited tokens.
func Tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	return fields
}
