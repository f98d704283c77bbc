package leadgen

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/pkg/jina"
)

// Searcher is the search-results capability the resolver depends on.
// jina.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...jina.SearchOption) (*jina.SearchResponse, error)
}

// Resolver fans queries out to the search provider and upserts the resulting
// candidate URLs. Safe to run concurrently with itself: the link upsert is
// atomic at the store level.
type Resolver struct {
	searcher    Searcher
	store       store.Store
	limiter     *rate.Limiter
	concurrency int
	searchOpts  []jina.SearchOption
}

// NewResolver builds a Resolver. ratePerSecond throttles provider calls
// across the fan-out; concurrency bounds in-flight searches.
func NewResolver(searcher Searcher, st store.Store, concurrency, ratePerSecond int, opts ...jina.SearchOption) *Resolver {
	if concurrency < 1 {
		concurrency = 1
	}
	if ratePerSecond < 1 {
		ratePerSecond = 1
	}
	return &Resolver{
		searcher:    searcher,
		store:       st,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond),
		concurrency: concurrency,
		searchOpts:  opts,
	}
}

// Resolve runs one search per query and bulk-upserts every result keyed on
// link. A failed query logs a warning and contributes zero results; it never
// aborts the batch and never fabricates tuples.
func (r *Resolver) Resolve(ctx context.Context, projectID int64, queries []string) (*model.ResolveResult, error) {
	if len(queries) == 0 {
		return &model.ResolveResult{Success: true, Message: "no queries to resolve"}, nil
	}

	var mu sync.Mutex
	var collected []model.CandidateURL
	var failed int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, query := range queries {
		g.Go(func() error {
			if err := r.limiter.Wait(gctx); err != nil {
				return eris.Wrap(err, "resolver: rate limit wait")
			}

			resp, err := r.searcher.Search(gctx, query, r.searchOpts...)
			if err != nil {
				zap.L().Warn("search query failed",
					zap.String("query", query),
					zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
				return nil // one bad query must not abort the batch
			}

			mu.Lock()
			for _, res := range resp.Data {
				collected = append(collected, model.CandidateURL{
					Query:   query,
					Title:   res.Title,
					Link:    res.URL,
					Snippet: res.Description,
				})
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Dedupe by link within the batch; a single upsert statement cannot
	// touch the same row twice.
	seen := make(map[string]struct{}, len(collected))
	urls := collected[:0]
	for _, u := range collected {
		if u.Link == "" {
			continue
		}
		if _, ok := seen[u.Link]; ok {
			continue
		}
		seen[u.Link] = struct{}{}
		urls = append(urls, u)
	}

	upserted, err := r.store.UpsertCandidateURLs(ctx, projectID, urls)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: upsert urls")
	}

	processed := len(queries) - failed
	zap.L().Info("url resolution complete",
		zap.Int64("project_id", projectID),
		zap.Int("queries_processed", processed),
		zap.Int("queries_failed", failed),
		zap.Int64("urls_upserted", upserted),
	)

	return &model.ResolveResult{
		Success:          true,
		QueriesProcessed: processed,
		QueriesFailed:    failed,
		URLsUpserted:     int(upserted),
		Message:          fmt.Sprintf("resolved %d queries into %d URLs (%d queries failed)", processed, upserted, failed),
	}, nil
}
