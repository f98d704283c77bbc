package model

import "fmt"

// ResolveResult reports the outcome of one URL-resolution run.
type ResolveResult struct {
	Success          bool   `json:"success"`
	QueriesProcessed int    `json:"queries_processed"`
	QueriesFailed    int    `json:"queries_failed"`
	URLsUpserted     int    `json:"urls_upserted"`
	Message          string `json:"message"`
}

// ExtractResult reports the outcome of one extraction run over a project's
// eligible candidate URLs.
type ExtractResult struct {
	Success        bool   `json:"success"`
	Processed      int    `json:"urls_processed"`
	Skipped        int    `json:"urls_skipped"`
	Failed         int    `json:"urls_failed"`
	Attempted      int    `json:"total_urls_attempted"`
	LeadsExtracted int    `json:"leads_extracted"`
	Message        string `json:"message"`
}

// URLExtraction captures one URL's extraction outcome when results are
// returned for review instead of (or in addition to) being persisted.
type URLExtraction struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Query    string    `json:"query"`
	Snippet  string    `json:"snippet"`
	Status   URLStatus `json:"status"`
	PageText *string   `json:"page_text"`
	Leads    []string  `json:"leads"`
}

// IngestResult reports the outcome of one dataset upload.
type IngestResult struct {
	Success       bool     `json:"success"`
	BatchID       int64    `json:"batch_id"`
	RowsIngested  int      `json:"rows_ingested"`
	RowsSkipped   int      `json:"rows_skipped"`
	MergeFailed   bool     `json:"merge_failed"`
	MergedColumns []string `json:"merged_columns"`
	Message       string   `json:"message"`
}

// MergeResult reports the outcome of a SERP-side or dataset-side merge.
type MergeResult struct {
	Success      bool   `json:"success"`
	RowsUpserted int    `json:"rows_upserted"`
	RowsReset    int    `json:"rows_reset"`
	Message      string `json:"message"`
}

// Summary renders a one-line human summary of an extraction run.
func (r ExtractResult) Summary() string {
	return fmt.Sprintf("attempted %d URLs: %d processed, %d skipped, %d failed, %d leads extracted",
		r.Attempted, r.Processed, r.Skipped, r.Failed, r.LeadsExtracted)
}
