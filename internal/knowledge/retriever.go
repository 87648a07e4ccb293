// Package knowledge retrieves prior fault solutions by lexical overlap and
// writes newly discovered ones back, closing the self-learning loop.
package knowledge

import (
	"github.com/faultlinehq/faultline/internal/database"
	"github.com/faultlinehq/faultline/internal/relevance"
)

// DefaultLimit caps retrieval when the caller does not specify one.
const DefaultLimit = 5

// retrievalTokens bounds how many leading description tokens drive the match.
const retrievalTokens = 3

// Match is one prior fault retrieved for a description.
type Match struct {
	ID          int64
	Description string
	Solution    string
	Views       int
}

// Retriever finds similar prior faults. Matching is a cheap lexical
// heuristic: the description's first tokens against stored descriptions,
// ordered by popularity among the overlapping records — not by semantic
// closeness to the full query.
type Retriever struct {
	db *database.DB
}

// NewRetriever creates a Retriever over the fault store.
func NewRetriever(db *database.DB) *Retriever {
	return &Retriever{db: db}
}

// FindSimilar returns up to limit prior faults whose descriptions contain any
// of the first three tokens of the given description, most-viewed first. A
// short description still matches on whatever tokens exist; no matches is a
// valid empty result.
func (r *Retriever) FindSimilar(description string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	tokens := relevance.Tokenize(description)
	if len(tokens) > retrievalTokens {
		tokens = tokens[:retrievalTokens]
	}

	records, err := r.db.SearchFaultDescriptions(tokens, limit)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(records))
	for _, rec := range records {
		matches = append(matches, Match{
			ID:          rec.ID,
			Description: rec.FaultDescription,
			Solution:    rec.Solution,
			Views:       rec.Views,
		})
	}
	return matches, nil
}
