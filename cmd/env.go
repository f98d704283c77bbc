package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/leadgen"
	"github.com/sells-group/leadgen-cli/internal/store"
	anthropicpkg "github.com/sells-group/leadgen-cli/pkg/anthropic"
	"github.com/sells-group/leadgen-cli/pkg/jina"
)

// pipelineEnv holds the initialized store, provider clients, and pipeline
// components shared by the commands and the HTTP server.
type pipelineEnv struct {
	Store        store.Store
	Generator    *leadgen.QueryGenerator
	Resolver     *leadgen.Resolver
	Orchestrator *leadgen.Orchestrator
	Merger       *leadgen.Merger
	Ingestor     *leadgen.Ingestor
	Results      *leadgen.Results
}

func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore connects to Postgres and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initDatasetEnv builds the store-only environment for dataset, merge, and
// results commands. No provider keys are required.
func initDatasetEnv(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("dataset"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	merger := leadgen.NewMerger(st)
	return &pipelineEnv{
		Store:    st,
		Merger:   merger,
		Ingestor: leadgen.NewIngestor(st, merger, cfg.Ingest.MaxRows, cfg.Ingest.DuplicateReportLimit),
		Results:  leadgen.NewResults(st),
	}, nil
}

// initPipeline builds the full environment including the Anthropic and Jina
// clients. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("pipeline"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	jinaOpts := []jina.Option{jina.WithBaseURL(cfg.Jina.BaseURL)}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jinaOpts...)

	searchOpts := []jina.SearchOption{
		jina.WithCountry(cfg.Serp.Country),
		jina.WithLanguage(cfg.Serp.Language),
	}
	if cfg.Serp.Location != "" {
		searchOpts = append(searchOpts, jina.WithLocation(cfg.Serp.Location))
	}

	generator := leadgen.NewQueryGenerator(
		anthropicClient, cfg.Anthropic.SonnetModel, int64(cfg.Anthropic.MaxTokens),
		cfg.Serp.Region, cfg.Serp.Locations,
	)
	resolver := leadgen.NewResolver(
		jinaClient, st, cfg.Serp.MaxConcurrency, cfg.Serp.RatePerSecond, searchOpts...,
	)
	reasoner := leadgen.NewClaudeReasoner(
		anthropicClient, cfg.Anthropic.HaikuModel, int64(cfg.Anthropic.MaxTokens),
	)
	fetcher := leadgen.NewPageFetcher(jinaClient, cfg.Extract.MaxFetchChars)

	merger := leadgen.NewMerger(st)
	return &pipelineEnv{
		Store:        st,
		Generator:    generator,
		Resolver:     resolver,
		Orchestrator: leadgen.NewOrchestrator(st, reasoner, fetcher, cfg.Extract.BatchSize, cfg.Extract.MaxConcurrency),
		Merger:       merger,
		Ingestor:     leadgen.NewIngestor(st, merger, cfg.Ingest.MaxRows, cfg.Ingest.DuplicateReportLimit),
		Results:      leadgen.NewResults(st),
	}, nil
}

// printJSON writes v to stdout, indented.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
