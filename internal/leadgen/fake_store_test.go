package leadgen

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// fakeStore is an in-memory store.Store with the same observable semantics
// as the Postgres implementation: link-keyed upsert that preserves status,
// reset-then-repopulate merges, and NULLS LAST result ordering.
type fakeStore struct {
	mu sync.Mutex

	nextID    int64
	projects  map[int64]*model.Project
	queries   []model.Query
	urls      []model.CandidateURL
	leads     []model.ExtractedLead
	aggregate map[int64][]model.AggregatedLead
	batches   map[int64]model.DatasetBatch
	rows      map[int64][]model.DatasetRow
	columns   map[int64][]string
	merged    map[int64][]*model.MergedResult

	// failApply, when set, makes ApplyExtractionOutcomes drop outcomes for
	// these URL IDs and mark them failed, mimicking savepoint rollback.
	failApply map[int64]bool
	// failDatasetMerge makes UpsertDatasetMerge return this error.
	failDatasetMerge error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects:  make(map[int64]*model.Project),
		aggregate: make(map[int64][]model.AggregatedLead),
		batches:   make(map[int64]model.DatasetBatch),
		rows:      make(map[int64][]model.DatasetRow),
		columns:   make(map[int64][]string),
		merged:    make(map[int64][]*model.MergedResult),
		failApply: make(map[int64]bool),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) CreateProject(_ context.Context, name, description string) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.projects {
		if existing.Name == name {
			return nil, store.ErrProjectNameTaken
		}
	}
	p := &model.Project{ID: f.id(), Name: name, Description: description, CreatedAt: time.Now()}
	f.projects[p.ID] = p
	return p, nil
}

func (f *fakeStore) GetProject(_ context.Context, id int64) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, store.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ListProjects(_ context.Context) ([]model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Project, 0, len(f.projects))
	for _, p := range f.projects {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateProjectPrompts(_ context.Context, id int64, queryPrompt, extractionPrompt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return store.ErrProjectNotFound
	}
	p.QueryPrompt = queryPrompt
	p.ExtractionPrompt = extractionPrompt
	return nil
}

func (f *fakeStore) DeleteProject(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[id]; !ok {
		return store.ErrProjectNotFound
	}
	delete(f.projects, id)
	return nil
}

func (f *fakeStore) RefreshProjectCounters(_ context.Context, projectID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[projectID]; !ok {
		return store.ErrProjectNotFound
	}
	return nil
}

func (f *fakeStore) AddQueries(_ context.Context, projectID int64, queries []string) ([]model.Query, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[projectID]; !ok {
		return nil, store.ErrProjectNotFound
	}
	out := make([]model.Query, 0, len(queries))
	for _, q := range queries {
		rec := model.Query{ID: f.id(), ProjectID: projectID, Query: q, CreatedAt: time.Now()}
		f.queries = append(f.queries, rec)
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeStore) ListQueries(_ context.Context, projectID int64) ([]model.Query, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Query
	for _, q := range f.queries {
		if q.ProjectID == projectID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeStore) ClearQueries(_ context.Context, projectID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.queries[:0]
	removed := 0
	for _, q := range f.queries {
		if q.ProjectID == projectID {
			removed++
			continue
		}
		kept = append(kept, q)
	}
	f.queries = kept
	return removed, nil
}

func (f *fakeStore) UpsertCandidateURLs(_ context.Context, projectID int64, urls []model.CandidateURL) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[projectID]; !ok {
		return 0, store.ErrProjectNotFound
	}
	var n int64
	for _, u := range urls {
		n++
		found := false
		for i := range f.urls {
			if f.urls[i].Link == u.Link {
				// refresh title/snippet, preserve query, status, page text
				f.urls[i].Title = u.Title
				f.urls[i].Snippet = u.Snippet
				found = true
				break
			}
		}
		if found {
			continue
		}
		u.ID = f.id()
		u.ProjectID = projectID
		u.Status = model.URLStatusUnprocessed
		u.CreatedAt = time.Now()
		f.urls = append(f.urls, u)
	}
	return n, nil
}

func (f *fakeStore) ListEligibleURLs(_ context.Context, projectID int64, limit int) ([]model.CandidateURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CandidateURL
	for _, u := range f.urls {
		if u.ProjectID == projectID && !u.Status.Terminal() {
			out = append(out, u)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListProjectURLs(_ context.Context, projectID int64) ([]model.CandidateURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CandidateURL
	for _, u := range f.urls {
		if u.ProjectID == projectID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) CountURLsByStatus(_ context.Context, projectID int64) (map[model.URLStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[model.URLStatus]int)
	for _, u := range f.urls {
		if u.ProjectID == projectID {
			counts[u.Status]++
		}
	}
	return counts, nil
}

func (f *fakeStore) ApplyExtractionOutcomes(_ context.Context, outcomes []store.URLOutcome) (int, []int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	applied := 0
	var dropped []int64
	for _, o := range outcomes {
		if f.failApply[o.URLID] {
			// savepoint rollback followed by the status-only failed update
			for i := range f.urls {
				if f.urls[i].ID == o.URLID {
					f.urls[i].Status = model.URLStatusFailed
					break
				}
			}
			dropped = append(dropped, o.URLID)
			continue
		}
		for i := range f.urls {
			if f.urls[i].ID == o.URLID {
				f.urls[i].Status = o.Status
				f.urls[i].PageText = o.PageText
				break
			}
		}
		for _, lead := range o.Leads {
			f.leads = append(f.leads, model.ExtractedLead{
				ID:        f.id(),
				ProjectID: o.ProjectID,
				URLID:     o.URLID,
				Lead:      lead,
			})
		}
		applied++
	}
	return applied, dropped, nil
}

func (f *fakeStore) ResetExtraction(_ context.Context, projectID int64) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	urlsReset := 0
	for i := range f.urls {
		if f.urls[i].ProjectID != projectID {
			continue
		}
		if f.urls[i].Status != model.URLStatusUnprocessed || f.urls[i].PageText != nil {
			f.urls[i].Status = model.URLStatusUnprocessed
			f.urls[i].PageText = nil
			urlsReset++
		}
	}
	kept := f.leads[:0]
	deleted := 0
	for _, l := range f.leads {
		if l.ProjectID == projectID {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	f.leads = kept
	delete(f.aggregate, projectID)
	return urlsReset, deleted, nil
}

func (f *fakeStore) ListExtractedLeads(_ context.Context, projectID int64) ([]model.ExtractedLead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ExtractedLead
	for _, l := range f.leads {
		if l.ProjectID == projectID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) ReplaceAggregatedLeads(_ context.Context, projectID int64, leads []model.AggregatedLead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aggregate[projectID] = append([]model.AggregatedLead{}, leads...)
	return nil
}

func (f *fakeStore) ListAggregatedLeads(_ context.Context, projectID int64) ([]model.AggregatedLead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AggregatedLead{}, f.aggregate[projectID]...), nil
}

func (f *fakeStore) CreateDatasetBatch(_ context.Context, batch model.DatasetBatch, rows []model.DatasetRow) (*model.DatasetBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[batch.ProjectID]; !ok {
		return nil, store.ErrProjectNotFound
	}
	batch.ID = f.id()
	batch.RowCount = len(rows)
	batch.CreatedAt = time.Now()
	f.batches[batch.ID] = batch
	stored := make([]model.DatasetRow, len(rows))
	for i, r := range rows {
		r.ID = f.id()
		r.DatasetBatchID = batch.ID
		stored[i] = r
	}
	f.rows[batch.ID] = stored
	return &batch, nil
}

func (f *fakeStore) ListDatasetBatches(_ context.Context, projectID int64) ([]model.DatasetBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DatasetBatch
	for _, b := range f.batches {
		if b.ProjectID == projectID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListDatasetRows(_ context.Context, batchID int64) ([]model.DatasetRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, ok := f.rows[batchID]
	if !ok {
		return nil, store.ErrBatchNotFound
	}
	return append([]model.DatasetRow{}, rows...), nil
}

func (f *fakeStore) EnsureMergedColumns(_ context.Context, projectID int64, columns []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, col := range columns {
		exists := false
		for _, have := range f.columns[projectID] {
			if have == col {
				exists = true
				break
			}
		}
		if !exists {
			f.columns[projectID] = append(f.columns[projectID], col)
		}
	}
	return nil
}

func (f *fakeStore) ListMergedColumns(_ context.Context, projectID int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.columns[projectID]...), nil
}

func (f *fakeStore) ResetSerpLeads(_ context.Context, projectID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reset := 0
	for _, r := range f.merged[projectID] {
		if r.SerpLeads != nil {
			r.SerpLeads = nil
			reset++
		}
	}
	return reset, nil
}

func (f *fakeStore) UpsertSerpMerge(_ context.Context, projectID int64, leads []model.AggregatedLead) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range leads {
		count := l.SourceCount
		r := f.findMerged(projectID, l.Lead)
		r.SerpLeads = &count
	}
	return len(leads), nil
}

func (f *fakeStore) UpsertDatasetMerge(_ context.Context, projectID int64, column string, values map[string]string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDatasetMerge != nil {
		return 0, f.failDatasetMerge
	}
	for lead, value := range values {
		r := f.findMerged(projectID, lead)
		if r.Values == nil {
			r.Values = make(map[string]any)
		}
		r.Values[column] = value
	}
	return len(values), nil
}

// findMerged returns the merged row for the lead, creating it with a NULL
// serp count when absent. Caller holds the lock.
func (f *fakeStore) findMerged(projectID int64, lead string) *model.MergedResult {
	for _, r := range f.merged[projectID] {
		if r.Lead == lead {
			return r
		}
	}
	r := &model.MergedResult{ID: f.id(), ProjectID: projectID, Lead: lead}
	f.merged[projectID] = append(f.merged[projectID], r)
	return r
}

func (f *fakeStore) GetMergedResults(_ context.Context, projectID int64, filter store.ResultFilter) ([]model.MergedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := append([]*model.MergedResult{}, f.merged[projectID]...)
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case a.SerpLeads == nil && b.SerpLeads != nil:
			return false
		case a.SerpLeads != nil && b.SerpLeads == nil:
			return true
		case a.SerpLeads != nil && b.SerpLeads != nil && *a.SerpLeads != *b.SerpLeads:
			return *a.SerpLeads > *b.SerpLeads
		}
		return strings.Compare(a.Lead, b.Lead) < 0
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	out := make([]model.MergedResult, len(rows))
	for i, r := range rows {
		out[i] = *r
	}
	return out, nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Ping(context.Context) error    { return nil }
func (f *fakeStore) Close() error                  { return nil }

var _ store.Store = (*fakeStore)(nil)

func TestFakeStore_DuplicateProjectName(t *testing.T) {
	f := newFakeStore()
	_, err := f.CreateProject(context.Background(), "mining", "")
	require.NoError(t, err)

	_, err = f.CreateProject(context.Background(), "mining", "second attempt")
	assert.ErrorIs(t, err, store.ErrProjectNameTaken)
}
