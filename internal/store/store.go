package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// ErrProjectNotFound is returned when an operation references a project ID
// that does not exist.
var ErrProjectNotFound = eris.New("project not found")

// ErrProjectNameTaken is returned when creating a project whose name is
// already in use.
var ErrProjectNameTaken = eris.New("project name already in use")

// ErrBatchNotFound is returned when an operation references a dataset batch
// ID that does not exist.
var ErrBatchNotFound = eris.New("dataset batch not found")

// URLOutcome is the persisted result of extracting one candidate URL.
type URLOutcome struct {
	URLID     int64
	ProjectID int64
	Status    model.URLStatus
	PageText  *string
	Leads     []string
}

// ResultFilter specifies criteria for reading merged results.
type ResultFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, name, description string) (*model.Project, error)
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)
	UpdateProjectPrompts(ctx context.Context, id int64, queryPrompt, extractionPrompt string) error
	DeleteProject(ctx context.Context, id int64) error
	RefreshProjectCounters(ctx context.Context, projectID int64) error

	// Queries
	AddQueries(ctx context.Context, projectID int64, queries []string) ([]model.Query, error)
	ListQueries(ctx context.Context, projectID int64) ([]model.Query, error)
	ClearQueries(ctx context.Context, projectID int64) (int, error)

	// Candidate URLs. ListEligibleURLs with limit <= 0 selects every
	// eligible URL. ApplyExtractionOutcomes marks URLs whose outcome could
	// not be persisted as failed and returns their IDs in dropped.
	UpsertCandidateURLs(ctx context.Context, projectID int64, urls []model.CandidateURL) (int64, error)
	ListEligibleURLs(ctx context.Context, projectID int64, limit int) ([]model.CandidateURL, error)
	ListProjectURLs(ctx context.Context, projectID int64) ([]model.CandidateURL, error)
	CountURLsByStatus(ctx context.Context, projectID int64) (map[model.URLStatus]int, error)
	ApplyExtractionOutcomes(ctx context.Context, outcomes []URLOutcome) (applied int, dropped []int64, err error)
	ResetExtraction(ctx context.Context, projectID int64) (urlsReset, leadsDeleted int, err error)

	// Extracted and aggregated leads
	ListExtractedLeads(ctx context.Context, projectID int64) ([]model.ExtractedLead, error)
	ReplaceAggregatedLeads(ctx context.Context, projectID int64, leads []model.AggregatedLead) error
	ListAggregatedLeads(ctx context.Context, projectID int64) ([]model.AggregatedLead, error)

	// Datasets
	CreateDatasetBatch(ctx context.Context, batch model.DatasetBatch, rows []model.DatasetRow) (*model.DatasetBatch, error)
	ListDatasetBatches(ctx context.Context, projectID int64) ([]model.DatasetBatch, error)
	ListDatasetRows(ctx context.Context, batchID int64) ([]model.DatasetRow, error)

	// Merged results
	EnsureMergedColumns(ctx context.Context, projectID int64, columns []string) error
	ListMergedColumns(ctx context.Context, projectID int64) ([]string, error)
	ResetSerpLeads(ctx context.Context, projectID int64) (int, error)
	UpsertSerpMerge(ctx context.Context, projectID int64, leads []model.AggregatedLead) (int, error)
	UpsertDatasetMerge(ctx context.Context, projectID int64, column string, values map[string]string) (int, error)
	GetMergedResults(ctx context.Context, projectID int64, filter ResultFilter) ([]model.MergedResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
