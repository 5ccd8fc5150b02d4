package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/pkg/llm"
	"github.com/docpipe/docpipe/pkg/pipeline"
	"github.com/docpipe/docpipe/pkg/registry"
	"github.com/docpipe/docpipe/pkg/vector"
)

type fakeIngestor struct {
	submitted []pipeline.Request
	cancelErr error
	cancelled []string
}

func (f *fakeIngestor) Submit(requests []pipeline.Request) ([]string, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: empty batch", pipeline.ErrInvalidRequest)
	}
	ids := make([]string, len(requests))
	for i := range requests {
		if err := requests[i].Validate(); err != nil {
			return nil, err
		}
		ids[i] = fmt.Sprintf("%s-test-%d", pipeline.TaskPrefix, i)
	}
	f.submitted = append(f.submitted, requests...)
	return ids, nil
}

func (f *fakeIngestor) Cancel(taskID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, taskID)
	return nil
}

func (f *fakeIngestor) CancelAll() []string {
	return []string{"task-1", "task-2"}
}

type fakeVectorAdmin struct {
	collections map[string]vector.CollectionInfo
	hits        []vector.SearchHit
	listErr     error

	searchCategory string
	searchLimit    int
	deletedSource  string
	created        []string
	deleted        []string
}

func newFakeVectorAdmin() *fakeVectorAdmin {
	return &fakeVectorAdmin{collections: map[string]vector.CollectionInfo{}}
}

func (f *fakeVectorAdmin) ListCollections(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var names []string
	for name := range f.collections {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeVectorAdmin) GetCollection(ctx context.Context, name string) (vector.CollectionInfo, bool, error) {
	info, ok := f.collections[name]
	return info, ok, nil
}

func (f *fakeVectorAdmin) CreateCollection(ctx context.Context, name string, dimension int) error {
	f.created = append(f.created, name)
	f.collections[name] = vector.CollectionInfo{Name: name, Dimension: dimension}
	return nil
}

func (f *fakeVectorAdmin) DeleteCollection(ctx context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	delete(f.collections, name)
	return nil
}

func (f *fakeVectorAdmin) Search(ctx context.Context, collection string, vec []float32, category string, limit int, threshold float32) ([]vector.SearchHit, error) {
	f.searchCategory = category
	f.searchLimit = limit
	return f.hits, nil
}

func (f *fakeVectorAdmin) DeleteBySource(ctx context.Context, collection, source string) error {
	f.deletedSource = source
	return nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}
func (fakeEmbedder) Dimension() int   { return 3 }
func (fakeEmbedder) Provider() string { return "openai" }
func (fakeEmbedder) Model() string    { return "text-embedding-3-small" }

type fakeCompleter struct {
	prompt string
}

func (f *fakeCompleter) Complete(ctx context.Context, ep llm.Endpoint, prompt string) (string, error) {
	f.prompt = prompt
	return "the answer", nil
}

type testServer struct {
	handler  http.Handler
	store    *registry.Store
	ingestor *fakeIngestor
	vectors  *fakeVectorAdmin
	llm      *fakeCompleter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := registry.NewStore(t.TempDir(), nil)
	ingestor := &fakeIngestor{}
	vectors := newFakeVectorAdmin()
	completer := &fakeCompleter{}

	srv := NewServer(Config{
		Store:      store,
		Ingestor:   ingestor,
		Vectors:    vectors,
		Embedder:   fakeEmbedder{},
		Completer:  completer,
		AnswerEP:   llm.Endpoint{Provider: "gemini", Model: "gemini-2.0-flash"},
		Collection: "documentation",
	})
	return &testServer{
		handler:  srv.Handler(),
		store:    store,
		ingestor: ingestor,
		vectors:  vectors,
		llm:      completer,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestIngestAcceptsBatch(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/ingest",
		`[{"category":"golang","topic_or_url":"https://golang.org/docs"}]`)
	require.Equal(t, http.StatusAccepted, w.Code)

	body := decodeBody(t, w)
	assert.Len(t, body["taskIds"], 1)
	require.Len(t, ts.ingestor.submitted, 1)
	assert.Equal(t, "golang", ts.ingestor.submitted[0].Category)
}

func TestIngestRejectsNonArrayBody(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/ingest", `{"category":"golang"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestRejectsInvalidRequest(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/ingest", `[{"category":""}]`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody(t, w)["error"], "category")
	assert.Empty(t, ts.ingestor.submitted)
}

func TestGetTaskNotFound(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/tasks/get-llms-full-missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetTaskAndRawDetails(t *testing.T) {
	ts := newTestServer(t)
	taskID := ts.store.Register(pipeline.TaskPrefix)
	require.NoError(t, ts.store.SetStatus(taskID, registry.StatusRunning))

	details, err := pipeline.EncodeStageDetails(registry.StageDiscovery, pipeline.DiscoveryResult{
		SourcesFilePath: "/data/sources.json",
		Category:        "golang",
		OriginalInput:   "https://golang.org/docs",
	})
	require.NoError(t, err)
	require.NoError(t, ts.store.UpdateDetails(taskID, details))

	w := ts.do(t, http.MethodGet, "/api/v1/tasks/"+taskID, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, taskID, body["taskId"])
	assert.Equal(t, "running", body["status"])

	w = ts.do(t, http.MethodGet, "/api/v1/tasks/"+taskID+"/details", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, details, decodeBody(t, w)["details"])
}

func TestListTasksFiltersByPrefix(t *testing.T) {
	ts := newTestServer(t)
	ts.store.Register(pipeline.TaskPrefix)
	ts.store.Register("other-prefix")

	w := ts.do(t, http.MethodGet, "/api/v1/tasks", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["tasks"], 1)

	w = ts.do(t, http.MethodGet, "/api/v1/tasks?prefix=other-prefix", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["tasks"], 1)
}

func TestCancelTaskErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	ts.ingestor.cancelErr = fmt.Errorf("%w: nope", pipeline.ErrTaskNotFound)

	w := ts.do(t, http.MethodPost, "/api/v1/tasks/nope/cancel", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	ts.ingestor.cancelErr = fmt.Errorf("already finished: %w", registry.ErrTerminalState)
	w = ts.do(t, http.MethodPost, "/api/v1/tasks/done/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	ts.ingestor.cancelErr = nil
	w = ts.do(t, http.MethodPost, "/api/v1/tasks/live/cancel", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"live"}, ts.ingestor.cancelled)
}

func TestCancelAllTasks(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/tasks/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decodeBody(t, w)["count"])
}

func TestCleanupTasksByStatus(t *testing.T) {
	ts := newTestServer(t)

	done := ts.store.Register(pipeline.TaskPrefix)
	require.NoError(t, ts.store.SetStatus(done, registry.StatusRunning))
	require.NoError(t, ts.store.SetStatus(done, registry.StatusCompleted))

	failed := ts.store.Register(pipeline.TaskPrefix)
	require.NoError(t, ts.store.SetStatus(failed, registry.StatusRunning))
	require.NoError(t, ts.store.SetStatus(failed, registry.StatusFailed))

	w := ts.do(t, http.MethodPost, "/api/v1/tasks/cleanup", `{"statuses":["completed"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeBody(t, w)["removed"])

	_, ok := ts.store.Get(failed)
	assert.True(t, ok, "failed task survives a completed-only sweep")
}

func TestProgressSummary(t *testing.T) {
	ts := newTestServer(t)
	taskID := ts.store.Register(pipeline.TaskPrefix)
	require.NoError(t, ts.store.SetStatus(taskID, registry.StatusRunning))

	w := ts.do(t, http.MethodGet, "/api/v1/progress", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body, "totals")
	assert.Len(t, body["running"], 1)
}

func TestRestartPlan(t *testing.T) {
	ts := newTestServer(t)
	taskID := ts.store.Register(pipeline.TaskPrefix)
	require.NoError(t, ts.store.SetStatus(taskID, registry.StatusRunning))

	details, err := pipeline.EncodeStageDetails(registry.StageSynthesize, pipeline.SynthesizeResult{
		SummaryFilePath: "/data/summary.md",
		Category:        "golang",
		OriginalInput:   "https://golang.org/docs",
	})
	require.NoError(t, err)
	require.NoError(t, ts.store.UpdateDetails(taskID, details))
	require.NoError(t, ts.store.SetStatus(taskID, registry.StatusFailed))

	w := ts.do(t, http.MethodPost, "/api/v1/restart-plan",
		fmt.Sprintf(`{"task_id":%q,"restart_stage":"embed"}`, taskID))
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	req, ok := body["request"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/data/summary.md", req["synthesized_content_file_path"])
	assert.Equal(t, "golang", req["category"])
}

func TestRestartPlanRequiresFields(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/restart-plan", `{"task_id":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRestartPlanUnknownTask(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/restart-plan", `{"task_id":"missing","restart_stage":"embed"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListCollectionsWithInfo(t *testing.T) {
	ts := newTestServer(t)
	ts.vectors.collections["documentation"] = vector.CollectionInfo{Name: "documentation", Dimension: 3, PointsCount: 7}

	w := ts.do(t, http.MethodGet, "/api/v1/vectors/collections", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	collections, ok := body["collections"].([]any)
	require.True(t, ok)
	require.Len(t, collections, 1)
	first := collections[0].(map[string]any)
	assert.Equal(t, "documentation", first["name"])
	assert.EqualValues(t, 3, first["dimension"])
	assert.EqualValues(t, 7, first["points"])
}

func TestSearchVectors(t *testing.T) {
	ts := newTestServer(t)
	ts.vectors.hits = []vector.SearchHit{
		{ID: "p1", Score: 0.9, Payload: vector.Payload{Text: "hit", Source: "s.md", Category: "golang"}},
	}

	w := ts.do(t, http.MethodPost, "/api/v1/vectors/search", `{"query":"how do channels work","category":"golang"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Len(t, decodeBody(t, w)["hits"], 1)
	assert.Equal(t, "golang", ts.vectors.searchCategory)
	assert.Equal(t, 5, ts.vectors.searchLimit, "limit defaults when omitted")
}

func TestSearchVectorsRequiresQuery(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/vectors/search", `{"category":"golang"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveVectors(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/vectors/remove", `{"source":"/data/summary.md"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/data/summary.md", ts.vectors.deletedSource)
}

func TestResetCollection(t *testing.T) {
	ts := newTestServer(t)
	ts.vectors.collections["documentation"] = vector.CollectionInfo{Name: "documentation", Dimension: 768}

	w := ts.do(t, http.MethodPost, "/api/v1/vectors/reset", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{"documentation"}, ts.vectors.deleted)
	assert.Equal(t, []string{"documentation"}, ts.vectors.created)
	assert.Equal(t, 3, ts.vectors.collections["documentation"].Dimension, "recreated with the active embedding dimension")
}

func TestAnswerFromRetrievedChunks(t *testing.T) {
	ts := newTestServer(t)
	ts.vectors.hits = []vector.SearchHit{
		{ID: "p1", Score: 0.9, Payload: vector.Payload{Text: "chunk one", Source: "a.md"}},
		{ID: "p2", Score: 0.8, Payload: vector.Payload{Text: "chunk two", Source: "a.md"}},
		{ID: "p3", Score: 0.7, Payload: vector.Payload{Text: "chunk three", Source: "b.md"}},
	}

	w := ts.do(t, http.MethodPost, "/api/v1/answer", `{"question":"how do channels work"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "the answer", body["answer"])
	assert.Equal(t, []any{"a.md", "b.md"}, body["sources"], "sources are deduplicated in hit order")

	assert.Contains(t, ts.llm.prompt, "how do channels work")
	assert.Contains(t, ts.llm.prompt, "chunk one")
	assert.Contains(t, ts.llm.prompt, "--- Excerpt 3 (source: b.md) ---")
}

func TestAnswerWithNoMatches(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/answer", `{"question":"anything"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Contains(t, body["answer"], "No ingested documentation matched")
	assert.Empty(t, ts.llm.prompt, "the LLM is not called without retrieved chunks")
}

func TestHealthDegradedWhenVectorStoreDown(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	ts.vectors.listErr = errors.New("connection refused")
	w = ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decodeBody(t, w)["status"])
}
