package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/docpipe/pkg/governor"
)

func TestExtractTextSkipsNonContentElements(t *testing.T) {
	doc := `<html><head><title>Ignored</title><style>body{}</style></head>
<body><script>var x = 1;</script><h1>Heading</h1><p>Paragraph   with
spaces.</p><noscript>no js</noscript></body></html>`

	text := ExtractText(doc)
	assert.Equal(t, "Heading Paragraph with spaces.", text)
}

func TestExtractTextEmptyDocument(t *testing.T) {
	assert.Empty(t, ExtractText(""))
}

func TestExtractLinks(t *testing.T) {
	base, err := url.Parse("https://example.com/docs/")
	require.NoError(t, err)

	doc := `<body>
<a href="intro">relative</a>
<a href="/api/reference">rooted</a>
<a href="https://other.com/page#section">absolute with fragment</a>
<a href="#top">fragment only</a>
<a href="mailto:team@example.com">mail</a>
<a href="javascript:void(0)">js</a>
<a href="intro">duplicate</a>
</body>`

	links := ExtractLinks(doc, base)
	assert.Equal(t, []string{
		"https://example.com/docs/intro",
		"https://example.com/api/reference",
		"https://other.com/page",
	}, links)
}

func TestExtractLinksNilBase(t *testing.T) {
	assert.Nil(t, ExtractLinks(`<a href="/x">x</a>`, nil))
}

func TestPoolNavigateAndRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "docpipe/")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1>Hello</h1><a href="/next">next</a></body></html>`))
	}))
	defer srv.Close()

	pool := NewPool(governor.New(1, 1, 1))
	err := pool.WithPage(context.Background(), func(page Page) error {
		if err := page.Navigate(context.Background(), srv.URL); err != nil {
			return err
		}
		assert.Contains(t, page.Content(), "<h1>Hello</h1>")
		assert.Equal(t, "Hello next", page.Text())
		assert.Equal(t, []string{srv.URL + "/next"}, page.Links())
		return nil
	})
	require.NoError(t, err)
}

func TestPoolNavigateErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	pool := NewPool(governor.New(1, 1, 1))
	err := pool.WithPage(context.Background(), func(page Page) error {
		return page.Navigate(context.Background(), srv.URL+"/missing")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestNavigateTimeoutExpires(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	pool := NewPool(governor.New(1, 1, 1))
	err := pool.WithPage(context.Background(), func(page Page) error {
		return NavigateTimeout(context.Background(), page, srv.URL, 1)
	})
	assert.Error(t, err)
}
