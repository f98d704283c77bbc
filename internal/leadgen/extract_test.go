package leadgen

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/pkg/jina"
)

// stubReasoner scripts per-URL decisions. Keys are URLs; a nil Decision
// means "return an error for this URL".
type stubReasoner struct {
	first  map[string]*Decision
	second map[string]*Decision

	mu    sync.Mutex
	calls []ReasonInput
}

func (s *stubReasoner) Decide(_ context.Context, input ReasonInput) (*Decision, error) {
	s.mu.Lock()
	s.calls = append(s.calls, input)
	s.mu.Unlock()
	table := s.first
	if input.Fetched {
		table = s.second
	}
	d, ok := table[input.URL]
	if !ok || d == nil {
		return nil, eris.Errorf("reasoning failed for %s", input.URL)
	}
	return d, nil
}

// stubFetcher returns canned page text per URL.
type stubFetcher struct {
	pages map[string]string

	mu      sync.Mutex
	fetched []string
}

func (s *stubFetcher) Fetch(_ context.Context, url string) string {
	s.mu.Lock()
	s.fetched = append(s.fetched, url)
	s.mu.Unlock()
	return s.pages[url]
}

func seedProject(t *testing.T, st *fakeStore, links ...string) *model.Project {
	t.Helper()
	project, err := st.CreateProject(context.Background(), "test", "solar companies")
	require.NoError(t, err)
	urls := make([]model.CandidateURL, len(links))
	for i, link := range links {
		urls[i] = model.CandidateURL{Query: "q", Title: "t", Link: link, Snippet: "s"}
	}
	_, err = st.UpsertCandidateURLs(context.Background(), project.ID, urls)
	require.NoError(t, err)
	return project
}

func TestOrchestrator_Extract(t *testing.T) {
	st := newFakeStore()
	project := seedProject(t, st,
		"https://example.com/direct",  // answers from snippet
		"https://example.com/fetch",   // requests the page first
		"https://example.com/nothing", // no leads
	)

	reasoner := &stubReasoner{
		first: map[string]*Decision{
			"https://example.com/direct":  {Leads: []string{"Orica", "Dyno Nobel"}},
			"https://example.com/fetch":   {FetchRequested: true},
			"https://example.com/nothing": {Leads: []string{}},
		},
		second: map[string]*Decision{
			"https://example.com/fetch": {Leads: []string{"BHP Group"}},
		},
	}
	fetcher := &stubFetcher{pages: map[string]string{
		"https://example.com/fetch": "BHP Group tops the list",
	}}

	o := NewOrchestrator(st, reasoner, fetcher, 10, 1)
	result, err := o.Extract(context.Background(), project.ID)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 3, result.LeadsExtracted)
	assert.Equal(t, []string{"https://example.com/fetch"}, fetcher.fetched)

	leads, err := st.ListExtractedLeads(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Len(t, leads, 3)

	counts, err := st.CountURLsByStatus(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.URLStatusProcessed])
	assert.Equal(t, 1, counts[model.URLStatusSkip])

	// page text persisted only for the fetched URL
	urls, err := st.ListProjectURLs(context.Background(), project.ID)
	require.NoError(t, err)
	for _, u := range urls {
		if u.Link == "https://example.com/fetch" {
			require.NotNil(t, u.PageText)
			assert.Equal(t, "BHP Group tops the list", *u.PageText)
		} else {
			assert.Nil(t, u.PageText)
		}
	}
}

func TestOrchestrator_ReasoningErrorMarksFailedAndRetries(t *testing.T) {
	st := newFakeStore()
	project := seedProject(t, st, "https://example.com/broken")

	reasoner := &stubReasoner{first: map[string]*Decision{}} // every call errors
	o := NewOrchestrator(st, reasoner, &stubFetcher{}, 10, 1)

	result, err := o.Extract(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	leads, err := st.ListExtractedLeads(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Empty(t, leads)

	// failed URLs stay eligible: the next run selects them again
	result, err = o.Extract(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempted)
	assert.Equal(t, 1, result.Failed)
}

func TestOrchestrator_CleaningKeepsDuplicates(t *testing.T) {
	st := newFakeStore()
	project := seedProject(t, st, "https://example.com/dups")

	reasoner := &stubReasoner{first: map[string]*Decision{
		"https://example.com/dups": {Leads: []string{"Acme Corp", "[]", "", "Acme Corp "}},
	}}
	o := NewOrchestrator(st, reasoner, &stubFetcher{}, 10, 1)

	result, err := o.Extract(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.LeadsExtracted)

	leads, err := st.ListExtractedLeads(context.Background(), project.ID)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "Acme Corp", leads[0].Lead)
	assert.Equal(t, "Acme Corp", leads[1].Lead)
}

func TestOrchestrator_SecondFetchRequestFails(t *testing.T) {
	st := newFakeStore()
	project := seedProject(t, st, "https://example.com/greedy")

	reasoner := &stubReasoner{
		first: map[string]*Decision{
			"https://example.com/greedy": {FetchRequested: true},
		},
		second: map[string]*Decision{
			"https://example.com/greedy": {FetchRequested: true},
		},
	}
	o := NewOrchestrator(st, reasoner, &stubFetcher{}, 10, 1)

	result, err := o.Extract(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
}

func TestOrchestrator_ZeroEligibleURLs(t *testing.T) {
	st := newFakeStore()
	project, err := st.CreateProject(context.Background(), "empty", "")
	require.NoError(t, err)

	o := NewOrchestrator(st, &stubReasoner{}, &stubFetcher{}, 10, 1)
	result, err := o.Extract(context.Background(), project.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Attempted)
}

func TestOrchestrator_ProcessedURLsNotReselected(t *testing.T) {
	st := newFakeStore()
	project := seedProject(t, st, "https://example.com/once")

	reasoner := &stubReasoner{first: map[string]*Decision{
		"https://example.com/once": {Leads: []string{"Acme"}},
	}}
	o := NewOrchestrator(st, reasoner, &stubFetcher{}, 10, 1)

	_, err := o.Extract(context.Background(), project.ID)
	require.NoError(t, err)
	result, err := o.Extract(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Attempted)
	assert.Len(t, reasoner.calls, 1)
}

func TestOrchestrator_ExtractDrainsEveryEligibleURL(t *testing.T) {
	st := newFakeStore()
	links := make([]string, 12)
	decisions := make(map[string]*Decision, len(links))
	for i := range links {
		links[i] = fmt.Sprintf("https://example.com/page-%d", i)
		decisions[links[i]] = &Decision{Leads: []string{fmt.Sprintf("Company %d", i)}}
	}
	project := seedProject(t, st, links...)

	// persistence chunks smaller than the URL count must not leave
	// eligible URLs behind
	o := NewOrchestrator(st, &stubReasoner{first: decisions}, &stubFetcher{}, 5, 3)
	result, err := o.Extract(context.Background(), project.ID)
	require.NoError(t, err)

	assert.Equal(t, 12, result.Attempted)
	assert.Equal(t, 12, result.Processed)
	assert.Equal(t, 12, result.LeadsExtracted)

	counts, err := st.CountURLsByStatus(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, counts[model.URLStatusProcessed])
	assert.Equal(t, 0, counts[model.URLStatusUnprocessed])
}

func TestOrchestrator_DroppedOutcomeMarksFailed(t *testing.T) {
	st := newFakeStore()
	project := seedProject(t, st,
		"https://example.com/good",
		"https://example.com/bad",
	)
	reasoner := &stubReasoner{first: map[string]*Decision{
		"https://example.com/good": {Leads: []string{"Orica"}},
		"https://example.com/bad":  {Leads: []string{"Acme"}},
	}}

	urls, err := st.ListProjectURLs(context.Background(), project.ID)
	require.NoError(t, err)
	for _, u := range urls {
		if u.Link == "https://example.com/bad" {
			st.failApply[u.ID] = true
		}
	}

	o := NewOrchestrator(st, reasoner, &stubFetcher{}, 10, 1)
	result, err := o.Extract(context.Background(), project.ID)
	require.NoError(t, err)

	// the dropped URL counts as failed, not processed, and its leads are
	// not reported
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.LeadsExtracted)

	counts, err := st.CountURLsByStatus(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.URLStatusProcessed])
	assert.Equal(t, 1, counts[model.URLStatusFailed])

	leads, err := st.ListExtractedLeads(context.Background(), project.ID)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Orica", leads[0].Lead)
}

func TestOrchestrator_ProjectNotFound(t *testing.T) {
	st := newFakeStore()
	o := NewOrchestrator(st, &stubReasoner{}, &stubFetcher{}, 10, 1)

	_, err := o.Extract(context.Background(), 404)
	require.Error(t, err)
}

func TestOrchestrator_TestExtractionPersistsNothing(t *testing.T) {
	st := newFakeStore()
	project := seedProject(t, st, "https://example.com/a", "https://example.com/b")

	// mark one URL processed so the review covers terminal statuses too
	firstRun := &stubReasoner{first: map[string]*Decision{
		"https://example.com/a": {Leads: []string{"Orica"}},
		"https://example.com/b": {Leads: []string{}},
	}}
	o := NewOrchestrator(st, firstRun, &stubFetcher{}, 10, 1)
	_, err := o.Extract(context.Background(), project.ID)
	require.NoError(t, err)

	review := &stubReasoner{first: map[string]*Decision{
		"https://example.com/a": {Leads: []string{"Orica", "BHP Group"}},
		"https://example.com/b": {Leads: []string{"Dyno Nobel"}},
	}}
	o = NewOrchestrator(st, review, &stubFetcher{}, 10, 1)

	result, extractions, err := o.TestExtraction(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempted)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 3, result.LeadsExtracted)
	require.Len(t, extractions, 2)
	assert.Equal(t, []string{"Orica", "BHP Group"}, extractions[0].Leads)

	// persisted state unchanged by the review run
	leads, err := st.ListExtractedLeads(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Len(t, leads, 1)
	counts, err := st.CountURLsByStatus(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.URLStatusProcessed])
	assert.Equal(t, 1, counts[model.URLStatusSkip])
}

func TestPageFetcher_TruncatesAndDegrades(t *testing.T) {
	long := ""
	for len(long) < 100 {
		long += "word "
	}
	client := &stubJina{content: long}
	f := NewPageFetcher(client, 20)

	text := f.Fetch(context.Background(), "https://example.com")
	assert.LessOrEqual(t, len(text), 20)
	assert.NotEmpty(t, text)

	client.err = eris.New("read failed")
	assert.Empty(t, f.Fetch(context.Background(), "https://example.com"))
}

// stubJina fakes the reader side of the Jina client.
type stubJina struct {
	content string
	err     error
}

func (s *stubJina) Read(_ context.Context, _ string) (*jina.ReadResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	resp := &jina.ReadResponse{}
	resp.Data.Content = s.content
	return resp, nil
}

func (s *stubJina) Search(_ context.Context, _ string, _ ...jina.SearchOption) (*jina.SearchResponse, error) {
	return &jina.SearchResponse{}, nil
}
