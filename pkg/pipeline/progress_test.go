package pipeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/pkg/registry"
)

func TestProgressSummaryCountsAndRunning(t *testing.T) {
	store := registry.NewStore(t.TempDir(), nil)

	queued := store.Register(TaskPrefix)
	running := store.Register(TaskPrefix)
	done := store.Register(TaskPrefix)

	require.NoError(t, store.SetStatus(running, registry.StatusRunning))
	require.NoError(t, store.SetStage(running, registry.StageFetch))
	require.NoError(t, store.UpdateDetails(running, "Fetch Stage: Processing 3/10: https://example.com"))

	require.NoError(t, store.SetStatus(done, registry.StatusRunning))
	require.NoError(t, store.SetStatus(done, registry.StatusCompleted))

	summary := Progress(store, time.Now())

	assert.Equal(t, 1, summary.Totals["queued"])
	assert.Equal(t, 1, summary.Totals["running"])
	assert.Equal(t, 1, summary.Totals["completed"])
	assert.Equal(t, 1, summary.Queued)

	require.Len(t, summary.Running, 1)
	rt := summary.Running[0]
	assert.Equal(t, running, rt.TaskID)
	assert.Equal(t, "Fetch", rt.Stage)
	require.NotNil(t, rt.ProgressCurrent)
	assert.Equal(t, 3, *rt.ProgressCurrent)
	require.NotNil(t, rt.ProgressTotal)
	assert.Equal(t, 10, *rt.ProgressTotal)

	_ = queued
}

func TestViewTaskDetailLevels(t *testing.T) {
	store := registry.NewStore(t.TempDir(), nil)
	id := store.Register(TaskPrefix)
	require.NoError(t, store.SetStatus(id, registry.StatusRunning))

	details, err := EncodeStageDetails(registry.StageFetch, FetchResult{
		FetchOutputDirPath: "/data/fetch_output/t1",
		Category:           "docs",
		SourceCount:        7,
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateDetails(id, details))

	rec, ok := store.Get(id)
	require.True(t, ok)

	simple := ViewTask(rec, DetailSimple, time.Now())
	assert.Equal(t, "Completed fetch stage", simple.Message)
	assert.Empty(t, simple.Details)

	detailed := ViewTask(rec, DetailDetailed, time.Now())
	assert.Empty(t, detailed.Message)
	assert.JSONEq(t, details, detailed.Details)
}

func TestViewTaskSimplePassesPlainTextThrough(t *testing.T) {
	store := registry.NewStore(t.TempDir(), nil)
	id := store.Register(TaskPrefix)
	require.NoError(t, store.SetStatus(id, registry.StatusRunning))
	require.NoError(t, store.UpdateDetails(id, "Crawling: Processed ~4 pages, Found 2/100"))

	rec, ok := store.Get(id)
	require.True(t, ok)

	view := ViewTask(rec, DetailSimple, time.Now())
	assert.Equal(t, "Crawling: Processed ~4 pages, Found 2/100", view.Message)
}

func TestViewTaskSimpleShowsFailure(t *testing.T) {
	details, err := EncodeStageDetails(registry.StageSynthesize, SynthesizeResult{Category: "docs"})
	require.NoError(t, err)
	sd, ok := DecodeStageDetails(details)
	require.True(t, ok)
	sd.Error = "provider quota exhausted"

	data, err := json.Marshal(sd)
	require.NoError(t, err)
	assert.Equal(t, "Failed after synthesize stage: provider quota exhausted",
		collapseDetails(string(data)))
}
