package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/leadgen"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// stubStore implements the handful of store methods the router tests hit;
// everything else panics via the embedded nil interface.
type stubStore struct {
	store.Store
	projects []model.Project
}

func (s *stubStore) ListProjects(context.Context) ([]model.Project, error) {
	return s.projects, nil
}

func (s *stubStore) CreateProject(_ context.Context, name, description string) (*model.Project, error) {
	for _, p := range s.projects {
		if p.Name == name {
			return nil, store.ErrProjectNameTaken
		}
	}
	p := model.Project{ID: int64(len(s.projects) + 1), Name: name, Description: description}
	s.projects = append(s.projects, p)
	return &p, nil
}

func (s *stubStore) GetProject(_ context.Context, id int64) (*model.Project, error) {
	for _, p := range s.projects {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, store.ErrProjectNotFound
}

func newTestRouter(st store.Store) http.Handler {
	merger := leadgen.NewMerger(st)
	return newRouter(&pipelineEnv{
		Store:    st,
		Merger:   merger,
		Ingestor: leadgen.NewIngestor(st, merger, 0, 0),
		Results:  leadgen.NewResults(st),
	})
}

func TestServeHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&stubStore{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestServeCreateProject(t *testing.T) {
	st := &stubStore{}
	router := newTestRouter(st)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/projects",
		strings.NewReader(`{"name": "mining", "description": "mining suppliers"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "mining", created.Name)
	require.Len(t, st.projects, 1)
}

func TestServeCreateProject_DuplicateName(t *testing.T) {
	st := &stubStore{projects: []model.Project{{ID: 1, Name: "mining"}}}
	rec := httptest.NewRecorder()
	newTestRouter(st).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/projects",
		strings.NewReader(`{"name": "mining"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.Len(t, st.projects, 1)
}

func TestServeCreateProject_MissingName(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&stubStore{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/projects",
		strings.NewReader(`{"description": "no name"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeGetProject_NotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&stubStore{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects/42", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeInvalidProjectID(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&stubStore{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeListProjects(t *testing.T) {
	st := &stubStore{projects: []model.Project{{ID: 1, Name: "solar"}}}
	rec := httptest.NewRecorder()
	newTestRouter(st).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var projects []model.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, "solar", projects[0].Name)
}

func TestServeGracefulShutdownDrainsRequests(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	})}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()

	reqErr := make(chan error, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err == nil {
			resp.Body.Close()
		}
		reqErr <- err
	}()
	<-started

	// shutdown must wait for the in-flight request even though the signal
	// context that triggered it is long gone
	done := make(chan error, 1)
	go func() { done <- shutdownServer(srv, 2*time.Second) }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-done)
	require.NoError(t, <-reqErr)
}
