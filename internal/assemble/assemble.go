// Package assemble merges owner-scoped document excerpts into a bounded
// prompt context for synthesis.
package assemble

import (
	"fmt"
	"strings"

	"github.com/faultlinehq/faultline/internal/database"
)

// Context is the assembled document context. Documents that did not fit the
// total budget (or were not found for this owner) are reported, never
// silently dropped.
type Context struct {
	Text                string
	IncludedDocumentIDs []int64
	OmittedDocumentIDs  []int64
}

// Assembler builds document context under per-document and total caps.
type Assembler struct {
	db             *database.DB
	perDocumentCap int
	totalBudget    int
}

// New creates an Assembler. Zero caps get conservative defaults.
func New(db *database.DB, perDocumentCap, totalBudget int) *Assembler {
	if perDocumentCap <= 0 {
		perDocumentCap = 3000
	}
	if totalBudget <= 0 {
		totalBudget = 12000
	}
	return &Assembler{db: db, perDocumentCap: perDocumentCap, totalBudget: totalBudget}
}

// Assemble fetches each referenced document scoped to the owner, truncates it
// to the per-document cap, and concatenates with identifying headers.
// Documents are included first-requested-first until the total budget is
// spent; the rest land in OmittedDocumentIDs. A document another account owns
// is treated as not found and also reported as omitted.
func (a *Assembler) Assemble(documentIDs []int64, ownerID int64) (*Context, error) {
	result := &Context{}
	var b strings.Builder
	remaining := a.totalBudget

	for _, docID := range documentIDs {
		doc, err := a.db.GetDocument(docID, ownerID)
		if err != nil {
			return nil, fmt.Errorf("loading document %d: %w", docID, err)
		}
		if doc == nil {
			result.OmittedDocumentIDs = append(result.OmittedDocumentIDs, docID)
			continue
		}

		excerpt := doc.ExtractedText
		if len(excerpt) > a.perDocumentCap {
			excerpt = excerpt[:a.perDocumentCap]
		}

		header := fmt.Sprintf("--- Document %d: %s ---\n", doc.ID, doc.Name)
		if len(header)+len(excerpt) > remaining {
			result.OmittedDocumentIDs = append(result.OmittedDocumentIDs, docID)
			continue
		}

		b.WriteString(header)
		b.WriteString(excerpt)
		b.WriteString("\n\n")
		remaining -= len(header) + len(excerpt)
		result.IncludedDocumentIDs = append(result.IncludedDocumentIDs, docID)
	}

	result.Text = strings.TrimSpace(b.String())
	return result, nil
}
