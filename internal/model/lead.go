// Package model defines the domain entities shared across the lead pipeline.
package model

import (
	"time"
)

// URLStatus represents the extraction state of a candidate URL.
type URLStatus string

const (
	URLStatusUnprocessed URLStatus = "unprocessed"
	URLStatusProcessed   URLStatus = "processed"
	URLStatusSkip        URLStatus = "skip"
	URLStatusFailed      URLStatus = "failed"
)

// Valid reports whether s is one of the defined URL statuses.
func (s URLStatus) Valid() bool {
	switch s {
	case URLStatusUnprocessed, URLStatusProcessed, URLStatusSkip, URLStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether a URL in this status is re-selected by an
// extraction run. Failed URLs are retried; processed and skip are terminal
// unless the project's extraction state is reset.
func (s URLStatus) Terminal() bool {
	return s == URLStatusProcessed || s == URLStatusSkip
}

// Project is a lead-generation project. It owns every other entity by
// foreign key; deleting a project cascades.
type Project struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	QueryPrompt      string    `json:"query_prompt,omitempty"`
	ExtractionPrompt string    `json:"extraction_prompt,omitempty"`
	LeadsCollected   int       `json:"leads_collected"`
	DatasetsAdded    int       `json:"datasets_added"`
	URLsProcessed    int       `json:"urls_processed"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Query is a single generated (or manually entered) search query.
// Immutable once created.
type Query struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}

// CandidateURL is a search-result page considered for lead extraction.
// Link is globally unique and is the upsert key: re-resolving the same link
// refreshes title/snippet but never touches status or fetched page text.
type CandidateURL struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Query     string    `json:"query"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Snippet   string    `json:"snippet"`
	PageText  *string   `json:"page_text,omitempty"`
	Status    URLStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ExtractedLead is one raw company name extracted from one candidate URL.
// Insert-only; deduplication happens at aggregation, not here.
type ExtractedLead struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	URLID     int64     `json:"url_id"`
	Lead      string    `json:"lead"`
	CreatedAt time.Time `json:"created_at"`
}

// AggregatedLead is a fully derived per-project rollup of ExtractedLead:
// one row per normalized name with the count of distinct source URLs.
type AggregatedLead struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	Lead        string    `json:"lead"`
	SourceCount int       `json:"source_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DatasetBatch records one dataset upload and its column mapping.
// Immutable after ingestion completes.
type DatasetBatch struct {
	ID                int64     `json:"id"`
	ProjectID         int64     `json:"project_id"`
	Name              string    `json:"name"`
	LeadColumn        string    `json:"lead_column"`
	EnrichmentColumns []string  `json:"enrichment_columns"`
	RowCount          int       `json:"row_count"`
	CreatedAt         time.Time `json:"created_at"`
}

// DatasetRow is one validated row from an uploaded dataset. Lead is stored
// normalized. EnrichmentValue is the raw cell value for single-column
// batches, a JSON object string for multi-column batches, or the literal
// "true" for synthesized presence columns.
type DatasetRow struct {
	ID              int64     `json:"id"`
	DatasetBatchID  int64     `json:"dataset_batch_id"`
	Lead            string    `json:"lead"`
	EnrichmentValue string    `json:"enrichment_value"`
	CreatedAt       time.Time `json:"created_at"`
}

// MergedResult is the fixed base record of the per-project results table:
// exactly one row per (project, normalized lead). Enrichment values live in
// a separate extension store keyed by column name.
type MergedResult struct {
	ID        int64          `json:"id"`
	ProjectID int64          `json:"project_id"`
	Lead      string         `json:"lead"`
	SerpLeads *int           `json:"serp_leads"`
	Values    map[string]any `json:"values,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
