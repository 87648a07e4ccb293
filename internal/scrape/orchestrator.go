package scrape

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/faultlinehq/faultline/internal/database"
	"github.com/faultlinehq/faultline/internal/extract"
	"github.com/faultlinehq/faultline/internal/relevance"
)

// ScrapedContent is a transient scored extract from one external page. It is
// discarded after ranking unless explicitly promoted to a fault record.
type ScrapedContent struct {
	SourceID       int64
	SourceName     string
	URL            string
	Title          string
	Content        string
	RelevanceScore float64
	Info           extract.Info
}

// Result holds the outcome of one search batch.
type Result struct {
	Results          []ScrapedContent
	SourcesAttempted []string
	SourcesFailed    []string
}

// Options bound a search batch's resource usage.
type Options struct {
	MaxConcurrent     int
	Timeout           time.Duration
	RequestsPerSecond float64
	ContentCap        int
	TopResults        int
}

// Orchestrator fans a query out across all active search sources, isolating
// per-source failures and ranking the aggregate by relevance.
type Orchestrator struct {
	db      *database.DB
	fetcher *Fetcher
	scorer  relevance.Scorer
	limiter *rate.Limiter
	opts    Options
}

// NewOrchestrator creates an Orchestrator. A nil scorer falls back to the
// default token-overlap scorer.
func NewOrchestrator(db *database.DB, scorer relevance.Scorer, opts Options) *Orchestrator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	if opts.ContentCap <= 0 {
		opts.ContentCap = 6000
	}
	if opts.TopResults <= 0 {
		opts.TopResults = 20
	}
	if scorer == nil {
		scorer = relevance.TokenOverlap{}
	}
	return &Orchestrator{
		db:      db,
		fetcher: NewFetcher(opts.Timeout),
		scorer:  scorer,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.MaxConcurrent),
		opts:    opts,
	}
}

// SearchAll queries every active source concurrently. A failing source is
// recorded and skipped, never aborting the batch. Every attempted source's
// last_scraped timestamp is updated regardless of outcome. Results are sorted
// by descending relevance and capped.
func (o *Orchestrator) SearchAll(ctx context.Context, query string) (*Result, error) {
	sources, err := o.db.GetActiveSources()
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if len(sources) == 0 {
		log.Println("No active search sources configured")
		return result, nil
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.opts.MaxConcurrent)

	for _, source := range sources {
		result.SourcesAttempted = append(result.SourcesAttempted, source.Name)

		g.Go(func() error {
			contents, srcErr := o.searchSource(ctx, source, query)

			// Bookkeeping happens even for failed fetches so external
			// scheduling can back off on dead sources.
			if err := o.db.TouchSourceScraped(source.ID); err != nil {
				log.Printf("Failed to update last_scraped for %s: %v", source.Name, err)
			}

			mu.Lock()
			defer mu.Unlock()
			if srcErr != nil {
				log.Printf("Source %s failed: %v", source.Name, srcErr)
				result.SourcesFailed = append(result.SourcesFailed, source.Name)
				return nil
			}
			result.Results = append(result.Results, contents...)
			return nil
		})
	}

	g.Wait()

	sort.SliceStable(result.Results, func(i, j int) bool {
		return result.Results[i].RelevanceScore > result.Results[j].RelevanceScore
	})
	if len(result.Results) > o.opts.TopResults {
		result.Results = result.Results[:o.opts.TopResults]
	}

	log.Printf("Search complete: %d results from %d sources (%d failed)",
		len(result.Results), len(sources), len(result.SourcesFailed))
	return result, nil
}

func (o *Orchestrator) searchSource(ctx context.Context, source database.SearchSource, query string) ([]ScrapedContent, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if source.SourceType == "feed" {
		return o.searchFeedSource(ctx, source, query)
	}

	var authEnv *string
	if source.RequiresAuth {
		authEnv = source.AuthKeyEnv
	}

	html, err := o.fetcher.Fetch(ctx, source.URL, source.RespectsRobots, authEnv)
	if err != nil {
		return nil, err
	}

	title, text := ParsePage(html, source.URL)
	text = Truncate(text, o.opts.ContentCap)
	if text == "" {
		return nil, ErrSourceUnavailable
	}
	if title == "" {
		title = source.Name
	}

	return []ScrapedContent{{
		SourceID:       source.ID,
		SourceName:     source.Name,
		URL:            source.URL,
		Title:          title,
		Content:        text,
		RelevanceScore: o.scorer.Score(text, query),
		Info:           extract.Extract(text),
	}}, nil
}

func (o *Orchestrator) searchFeedSource(ctx context.Context, source database.SearchSource, query string) ([]ScrapedContent, error) {
	items, err := o.fetcher.fetchFeed(ctx, source.URL)
	if err != nil {
		return nil, err
	}

	var contents []ScrapedContent
	for _, item := range items {
		text := Truncate(item.Content, o.opts.ContentCap)
		contents = append(contents, ScrapedContent{
			SourceID:       source.ID,
			SourceName:     source.Name,
			URL:            item.URL,
			Title:          item.Title,
			Content:        text,
			RelevanceScore: o.scorer.Score(item.Title+" "+text, query),
			Info:           extract.Extract(text),
		})
	}
	return contents, nil
}
