package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/pkg/browser"
	"github.com/docpipe/docpipe/pkg/config"
	"github.com/docpipe/docpipe/pkg/llm"
	"github.com/docpipe/docpipe/pkg/websearch"
)

type stubSearcher struct {
	results []websearch.Result
	err     error
	query   string
}

func (s *stubSearcher) Search(ctx context.Context, query string, maxResults int) ([]websearch.Result, error) {
	s.query = query
	return s.results, s.err
}

type noOpener struct{}

func (noOpener) WithPage(ctx context.Context, fn func(browser.Page) error) error {
	return errors.New("no pages in this test")
}

func newTestEngine(searcher websearch.Searcher, opener browser.Opener) *Engine {
	if searcher == nil {
		searcher = &stubSearcher{}
	}
	if opener == nil {
		opener = noOpener{}
	}
	return NewEngine(searcher, opener, func() *config.CrawlFilters {
		return config.DefaultCrawlFilters()
	}, nil, nil)
}

func TestResolveURLInput(t *testing.T) {
	e := newTestEngine(nil, nil)
	start, err := e.Resolve(context.Background(), "https://example.com/docs")
	require.NoError(t, err)
	assert.False(t, start.IsLocal)
	assert.Equal(t, "https://example.com/docs", start.Value)
}

func TestResolveLocalPath(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(nil, nil)
	start, err := e.Resolve(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, start.IsLocal)
	assert.Equal(t, dir, start.Value)
}

func TestResolveTopicViaSearch(t *testing.T) {
	searcher := &stubSearcher{results: []websearch.Result{
		{URL: "https://golang.org/blog/announcement", Title: "Blog"},
		{URL: "https://golang.org/docs", Title: "Docs"},
		{URL: "https://golang.org/docs/tutorial/getting-started", Title: "Tutorial"},
	}}
	e := newTestEngine(searcher, nil)

	start, err := e.Resolve(context.Background(), "golang")
	require.NoError(t, err)
	assert.False(t, start.IsLocal)
	assert.Equal(t, "https://golang.org/docs", start.Value, "shortest /docs result wins")
	assert.Equal(t, "golang documentation main page", searcher.query)
}

func TestResolveTopicWithoutDocsResultUsesShortest(t *testing.T) {
	searcher := &stubSearcher{results: []websearch.Result{
		{URL: "https://example.com/a/very/long/path"},
		{URL: "https://example.com/short"},
	}}
	e := newTestEngine(searcher, nil)

	start, err := e.Resolve(context.Background(), "example")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/short", start.Value)
}

func TestResolveTopicNoResultsIsFatal(t *testing.T) {
	e := newTestEngine(&stubSearcher{}, nil)
	_, err := e.Resolve(context.Background(), "nonexistent-topic")
	assert.True(t, llm.IsFatal(err))
}

func TestDiscoverLocalEnumeratesSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	for _, name := range []string{"a.md", "b.txt", filepath.Join("nested", "c.docx"), "skip.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	e := newTestEngine(nil, nil)
	sources, err := e.Discover(context.Background(), StartPoint{Value: dir, IsLocal: true}, Options{MaxURLs: 100})
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.md"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(dir, "nested", "c.docx"),
	}, sources)
}

func TestDiscoverLocalSingleFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	e := newTestEngine(nil, nil)
	sources, err := e.Discover(context.Background(), StartPoint{Value: file, IsLocal: true}, Options{MaxURLs: 100})
	require.NoError(t, err)
	assert.Equal(t, []string{file}, sources)
}

func TestDiscoverLocalEmptyDirectoryIsFatal(t *testing.T) {
	e := newTestEngine(nil, nil)
	_, err := e.Discover(context.Background(), StartPoint{Value: t.TempDir(), IsLocal: true}, Options{MaxURLs: 100})
	assert.True(t, llm.IsFatal(err))
}

func TestDiscoverLocalRespectsMaxURLs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.md", "b.md", "c.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	e := newTestEngine(nil, nil)
	sources, err := e.Discover(context.Background(), StartPoint{Value: dir, IsLocal: true}, Options{MaxURLs: 2})
	require.NoError(t, err)
	assert.Len(t, sources, 2)
}
