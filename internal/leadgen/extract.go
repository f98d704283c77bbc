package leadgen

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// Orchestrator runs lead extraction over a project's candidate URLs. Per-URL
// reasoning runs concurrently up to maxConcurrency; concurrent runs for the
// same project are unsafe and must be serialized by the caller.
type Orchestrator struct {
	store          store.Store
	reasoner       Reasoner
	fetcher        PageFetcher
	batchSize      int
	maxConcurrency int
}

// NewOrchestrator builds an Orchestrator. batchSize caps how many outcomes
// are persisted per store round trip and maxConcurrency how many URLs are
// reasoned about at once; zero or negative values pick defaults.
func NewOrchestrator(st store.Store, reasoner Reasoner, fetcher PageFetcher, batchSize, maxConcurrency int) *Orchestrator {
	if batchSize <= 0 {
		batchSize = 10
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Orchestrator{
		store:          st,
		reasoner:       reasoner,
		fetcher:        fetcher,
		batchSize:      batchSize,
		maxConcurrency: maxConcurrency,
	}
}

// urlVerdict is the in-memory outcome of one URL before batch persistence.
type urlVerdict struct {
	status   model.URLStatus
	pageText *string
	leads    []string
}

// Extract runs the per-URL state machine over every unprocessed or failed
// URL of the project and persists outcomes in batches. Zero eligible URLs
// is a valid steady state, not an error.
func (o *Orchestrator) Extract(ctx context.Context, projectID int64) (*model.ExtractResult, error) {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "extract: load project")
	}

	urls, err := o.store.ListEligibleURLs(ctx, projectID, 0)
	if err != nil {
		return nil, eris.Wrap(err, "extract: list urls")
	}
	if len(urls) == 0 {
		return &model.ExtractResult{
			Success: true,
			Message: "no eligible URLs to extract leads from",
		}, nil
	}

	runID := uuid.New().String()
	log := zap.L().With(
		zap.String("run_id", runID),
		zap.Int64("project_id", projectID),
	)
	log.Info("extraction run starting", zap.Int("urls", len(urls)))

	verdicts, err := o.runVerdicts(ctx, log, project.ExtractionPrompt, urls)
	if err != nil {
		return nil, err
	}

	result := &model.ExtractResult{Success: true, Attempted: len(urls)}
	outcomes := make([]store.URLOutcome, 0, len(urls))
	outcomeByURL := make(map[int64]store.URLOutcome, len(urls))
	for i, u := range urls {
		v := verdicts[i]
		switch v.status {
		case model.URLStatusProcessed:
			result.Processed++
			result.LeadsExtracted += len(v.leads)
		case model.URLStatusSkip:
			result.Skipped++
		case model.URLStatusFailed:
			result.Failed++
		}

		outcome := store.URLOutcome{
			URLID:     u.ID,
			ProjectID: projectID,
			Status:    v.status,
			PageText:  v.pageText,
			Leads:     v.leads,
		}
		outcomes = append(outcomes, outcome)
		outcomeByURL[u.ID] = outcome
	}

	for start := 0; start < len(outcomes); start += o.batchSize {
		end := min(start+o.batchSize, len(outcomes))
		_, dropped, err := o.store.ApplyExtractionOutcomes(ctx, outcomes[start:end])
		if err != nil {
			return nil, eris.Wrap(err, "extract: persist outcomes")
		}
		for _, urlID := range dropped {
			// the store marked the URL failed; take its intended outcome
			// back out of the counts
			switch oc := outcomeByURL[urlID]; oc.Status {
			case model.URLStatusProcessed:
				result.Processed--
				result.LeadsExtracted -= len(oc.Leads)
				result.Failed++
			case model.URLStatusSkip:
				result.Skipped--
				result.Failed++
			}
			log.Warn("extraction outcome dropped, url marked failed",
				zap.Int64("url_id", urlID))
		}
	}

	if err := o.store.RefreshProjectCounters(ctx, projectID); err != nil {
		log.Warn("counter refresh failed", zap.Error(err))
	}

	result.Message = result.Summary()
	log.Info("extraction run complete",
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("leads_extracted", result.LeadsExtracted),
	)
	return result, nil
}

// runVerdicts reasons about every URL, at most maxConcurrency at a time.
// Verdicts come back in input order.
func (o *Orchestrator) runVerdicts(ctx context.Context, log *zap.Logger, avoidCriteria string, urls []model.CandidateURL) ([]urlVerdict, error) {
	verdicts := make([]urlVerdict, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			verdicts[i] = o.extractOne(gctx, log, avoidCriteria, u)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "extract: cancelled")
	}
	return verdicts, nil
}

// extractOne drives the two-step reasoning protocol for a single URL. All
// errors are absorbed into a failed verdict; nothing escapes to abort the
// batch.
func (o *Orchestrator) extractOne(ctx context.Context, log *zap.Logger, avoidCriteria string, u model.CandidateURL) urlVerdict {
	input := ReasonInput{
		Query:         u.Query,
		Title:         u.Title,
		Snippet:       u.Snippet,
		URL:           u.Link,
		AvoidCriteria: avoidCriteria,
	}

	decision, err := o.reasoner.Decide(ctx, input)
	if err != nil {
		log.Error("reasoning failed", zap.String("url", u.Link), zap.Error(err))
		return urlVerdict{status: model.URLStatusFailed}
	}

	var pageText *string
	if decision.FetchRequested {
		text := o.fetcher.Fetch(ctx, u.Link)
		pageText = &text

		input.Fetched = true
		input.PageText = text
		decision, err = o.reasoner.Decide(ctx, input)
		if err != nil {
			log.Error("reasoning failed after fetch", zap.String("url", u.Link), zap.Error(err))
			return urlVerdict{status: model.URLStatusFailed}
		}
		if decision.FetchRequested {
			log.Error("reasoner requested a second fetch", zap.String("url", u.Link))
			return urlVerdict{status: model.URLStatusFailed}
		}
	}

	leads := cleanLeads(decision.Leads)
	if len(leads) == 0 {
		log.Info("no leads found", zap.String("url", u.Link))
		return urlVerdict{status: model.URLStatusSkip, pageText: pageText}
	}

	log.Info("leads extracted",
		zap.String("url", u.Link),
		zap.Int("count", len(leads)),
	)
	return urlVerdict{status: model.URLStatusProcessed, pageText: pageText, leads: leads}
}

// TestExtraction runs the extraction loop over every URL of the project
// regardless of status and returns per-URL results for review. Nothing is
// persisted: no statuses change and no leads are inserted. Intended for
// iterating on a project's extraction prompt.
func (o *Orchestrator) TestExtraction(ctx context.Context, projectID int64) (*model.ExtractResult, []model.URLExtraction, error) {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, nil, eris.Wrap(err, "extract: load project")
	}

	urls, err := o.store.ListProjectURLs(ctx, projectID)
	if err != nil {
		return nil, nil, eris.Wrap(err, "extract: list urls")
	}
	if len(urls) == 0 {
		return &model.ExtractResult{
			Success: true,
			Message: "no URLs to test extraction against",
		}, nil, nil
	}

	log := zap.L().With(
		zap.String("run_id", uuid.New().String()),
		zap.Int64("project_id", projectID),
		zap.Bool("test_mode", true),
	)

	verdicts, err := o.runVerdicts(ctx, log, project.ExtractionPrompt, urls)
	if err != nil {
		return nil, nil, err
	}

	result := &model.ExtractResult{Success: true, Attempted: len(urls)}
	extractions := make([]model.URLExtraction, 0, len(urls))
	for i, u := range urls {
		v := verdicts[i]
		switch v.status {
		case model.URLStatusProcessed:
			result.Processed++
			result.LeadsExtracted += len(v.leads)
		case model.URLStatusSkip:
			result.Skipped++
		case model.URLStatusFailed:
			result.Failed++
		}

		extractions = append(extractions, model.URLExtraction{
			URL:      u.Link,
			Title:    u.Title,
			Query:    u.Query,
			Snippet:  u.Snippet,
			Status:   v.status,
			PageText: v.pageText,
			Leads:    append([]string{}, v.leads...),
		})
	}

	result.Message = fmt.Sprintf("%s (review only, nothing persisted)", result.Summary())
	return result, extractions, nil
}
