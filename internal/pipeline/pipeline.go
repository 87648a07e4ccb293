// Package pipeline orchestrates the fault-diagnosis flow: admission control,
// retrieval and context assembly, synthesis, and the learning write-back.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/faultlinehq/faultline/internal/assemble"
	"github.com/faultlinehq/faultline/internal/config"
	"github.com/faultlinehq/faultline/internal/database"
	"github.com/faultlinehq/faultline/internal/knowledge"
	"github.com/faultlinehq/faultline/internal/llm"
	"github.com/faultlinehq/faultline/internal/quota"
	"github.com/faultlinehq/faultline/internal/relevance"
	"github.com/faultlinehq/faultline/internal/scrape"
	"github.com/faultlinehq/faultline/internal/synth"
)

// ErrInvalidInput means the request failed pre-flight validation. Nothing has
// been spent or persisted.
var ErrInvalidInput = errors.New("invalid input")

// requestCost is the quota cost of one completed request, in integer units.
const requestCost = 1

// RelatedFault pairs a retrieved prior fault with a heuristic similarity
// indicator. These come from the knowledge base, never from the generative
// service.
type RelatedFault struct {
	ID              int64   `json:"id"`
	Description     string  `json:"description"`
	SimilarityScore float64 `json:"similarityScore"`
}

// Response is the complete outcome of a diagnosis request. FaultID is nil
// when the caller chose not to persist.
type Response struct {
	Diagnosis          synth.Diagnosis `json:"diagnosis"`
	RelatedFaults      []RelatedFault  `json:"relatedFaults"`
	FaultID            *int64          `json:"faultId"`
	OmittedDocumentIDs []int64         `json:"omittedDocumentIds,omitempty"`
}

// SearchResponse is the outcome of a web-search request. SavedFaultIDs lists
// records explicitly promoted into the knowledge base.
type SearchResponse struct {
	Results          []scrape.ScrapedContent `json:"results"`
	SourcesAttempted []string                `json:"sourcesAttempted"`
	SourcesFailed    []string                `json:"sourcesFailed"`
	SavedFaultIDs    []int64                 `json:"savedFaultIds,omitempty"`
}

// Pipeline wires the diagnosis components together. One Pipeline serves many
// concurrent requests; there is no shared mutable state beyond the database.
type Pipeline struct {
	cfg          *config.Config
	db           *database.DB
	gate         *quota.Gate
	retriever    *knowledge.Retriever
	assembler    *assemble.Assembler
	synthesizer  *synth.Synthesizer
	writer       *knowledge.Writer
	orchestrator *scrape.Orchestrator
	scorer       relevance.Scorer
}

// New creates a Pipeline, resolving the generative-text provider from config.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	s := cfg.Synthesis
	provider := llm.CreateProvider(s.Provider, s.Model, s.OllamaURL, s.OpenAIModel, s.APIKeyEnv)
	return NewWithProvider(cfg, db, provider)
}

// NewWithProvider creates a Pipeline with an explicit provider. Tests use
// this to supply a stub.
func NewWithProvider(cfg *config.Config, db *database.DB, provider llm.Provider) *Pipeline {
	scorer := relevance.TokenOverlap{}
	return &Pipeline{
		cfg:         cfg,
		db:          db,
		gate:        quota.NewGate(db),
		retriever:   knowledge.NewRetriever(db),
		assembler:   assemble.New(db, cfg.Context.PerDocumentCap, cfg.Context.TotalBudget),
		synthesizer: synth.NewSynthesizer(provider, cfg.Synthesis.MaxTokens),
		writer:      knowledge.NewWriter(db),
		orchestrator: scrape.NewOrchestrator(db, scorer, scrape.Options{
			MaxConcurrent:     cfg.Search.MaxConcurrent,
			Timeout:           time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.Search.RequestsPerSecond,
			ContentCap:        cfg.Search.ContentCap,
			TopResults:        cfg.Search.TopResults,
		}),
		scorer: scorer,
	}
}

// Diagnose runs one complete diagnosis request. The caller receives either a
// complete Response or an error; quota is only spent on success, and exactly
// one history row is appended per completed request.
func (p *Pipeline) Diagnose(ctx context.Context, req *synth.Request) (*Response, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	// Admission is checked before any external call so a rejected request
	// spends nothing.
	if err := p.gate.Admit(req.AccountID); err != nil {
		return nil, err
	}

	var matches []knowledge.Match
	var docContext *assemble.Context

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		matches, err = p.retriever.FindSimilar(req.FaultDescription, p.cfg.Retrieval.Limit)
		return err
	})
	g.Go(func() error {
		var err error
		docContext, err = p.assembler.Assemble(req.DocumentIDs, req.AccountID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := gctx.Err(); err != nil {
		return nil, err
	}

	diagnosis, err := p.synthesizer.Synthesize(ctx, req, formatMatches(matches), docContext.Text)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Diagnosis:          *diagnosis,
		RelatedFaults:      p.pairRelated(req.FaultDescription, matches),
		OmittedDocumentIDs: docContext.OmittedDocumentIDs,
	}

	var faultIDs []int64
	if req.Save {
		faultID, err := p.writer.Persist(req, diagnosis)
		if err != nil {
			return nil, err
		}
		resp.FaultID = &faultID
		faultIDs = append(faultIDs, faultID)

		var relatedIDs []int64
		for _, m := range matches {
			relatedIDs = append(relatedIDs, m.ID)
		}
		p.writer.LinkRelated(faultID, relatedIDs)
	}

	if err := p.gate.Settle(req.AccountID); err != nil {
		return nil, err
	}

	if err := p.writer.RecordQuery(&database.QueryHistory{
		AccountID:       req.AccountID,
		QueryText:       req.FaultDescription,
		DeviceType:      &req.DeviceType,
		Manufacturer:    &req.Manufacturer,
		Model:           &req.Model,
		SearchPerformed: false,
		FaultIDs:        faultIDs,
		Cost:            requestCost,
	}); err != nil {
		return nil, err
	}

	log.Printf("Diagnosis complete for %s %s %s (saved=%v)",
		req.Manufacturer, req.Model, req.DeviceType, req.Save)
	return resp, nil
}

// Search fans the query out across all active external sources. Promotion of
// discoveries into the knowledge base only happens when save is set: it is an
// explicit write, not a side effect of searching.
func (p *Pipeline) Search(ctx context.Context, accountID int64, query string, save bool, deviceType, manufacturer, model string) (*SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidInput)
	}

	if err := p.gate.Admit(accountID); err != nil {
		return nil, err
	}

	result, err := p.orchestrator.SearchAll(ctx, query)
	if err != nil {
		return nil, err
	}

	resp := &SearchResponse{
		Results:          result.Results,
		SourcesAttempted: result.SourcesAttempted,
		SourcesFailed:    result.SourcesFailed,
	}

	if save {
		for _, content := range result.Results {
			if !content.Info.HasProcedure() {
				continue
			}
			faultID, err := p.writer.PersistDiscovered(query, content, deviceType, manufacturer, model)
			if err != nil {
				log.Printf("Could not promote %s: %v", content.URL, err)
				continue
			}
			resp.SavedFaultIDs = append(resp.SavedFaultIDs, faultID)
		}
	}

	if err := p.gate.Settle(accountID); err != nil {
		return nil, err
	}

	if err := p.writer.RecordQuery(&database.QueryHistory{
		AccountID:       accountID,
		QueryText:       query,
		SearchPerformed: true,
		FaultIDs:        resp.SavedFaultIDs,
		Cost:            requestCost,
	}); err != nil {
		return nil, err
	}

	return resp, nil
}

func validate(req *synth.Request) error {
	switch {
	case strings.TrimSpace(req.FaultDescription) == "":
		return fmt.Errorf("%w: empty fault description", ErrInvalidInput)
	case strings.TrimSpace(req.DeviceType) == "":
		return fmt.Errorf("%w: missing device type", ErrInvalidInput)
	case strings.TrimSpace(req.Manufacturer) == "":
		return fmt.Errorf("%w: missing manufacturer", ErrInvalidInput)
	case strings.TrimSpace(req.Model) == "":
		return fmt.Errorf("%w: missing model", ErrInvalidInput)
	}
	return nil
}

// pairRelated attaches a heuristic similarity indicator to each retrieved
// prior fault: token overlap between the two descriptions.
func (p *Pipeline) pairRelated(description string, matches []knowledge.Match) []RelatedFault {
	var related []RelatedFault
	for _, m := range matches {
		related = append(related, RelatedFault{
			ID:              m.ID,
			Description:     m.Description,
			SimilarityScore: p.scorer.Score(m.Description, description),
		})
	}
	return related
}

// formatMatches renders retrieved prior faults as a delimited prompt block.
func formatMatches(matches []knowledge.Match) string {
	var parts []string
	for i, m := range matches {
		parts = append(parts, fmt.Sprintf("[%d] %s\n  Known solution: %s", i+1, m.Description, m.Solution))
	}
	return strings.Join(parts, "\n\n")
}
